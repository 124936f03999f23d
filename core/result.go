package core

import (
	"context"
	"fmt"
	"strings"
)

type ResultKind string

const (
	ResultSuccess      ResultKind = "success"
	ResultTokenExpired ResultKind = "token_expired"
	ResultError        ResultKind = "error"
)

// Result is the tagged outcome of a provider operation. Exactly one of the
// three kinds is set; the dispatcher switches on Kind and never inspects error
// types to detect credential expiry.
type Result struct {
	Kind   ResultKind
	Value  any
	Err    error
	Reason string
}

func Success(value any) Result {
	return Result{Kind: ResultSuccess, Value: value}
}

func TokenExpired(reason string) Result {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "access token expired"
	}
	return Result{Kind: ResultTokenExpired, Reason: reason}
}

func Failure(err error) Result {
	if err == nil {
		err = fmt.Errorf("core: provider operation failed without a cause")
	}
	return Result{Kind: ResultError, Err: err}
}

func (r Result) IsSuccess() bool { return r.Kind == ResultSuccess }

func (r Result) IsTokenExpired() bool { return r.Kind == ResultTokenExpired }

func (r Result) IsError() bool { return r.Kind == ResultError }

// normalize guards against zero-value results from misbehaving operations.
func (r Result) normalize() Result {
	switch r.Kind {
	case ResultSuccess, ResultTokenExpired:
		return r
	case ResultError:
		if r.Err == nil {
			return Failure(nil)
		}
		return r
	default:
		return Failure(fmt.Errorf("core: provider operation returned unknown result kind %q", r.Kind))
	}
}

// OperationFunc is a typed provider capability. internalID is the provider-side
// account id of the integration.
type OperationFunc func(
	ctx context.Context,
	accessToken string,
	params Params,
	internalID string,
	integration Integration,
) Result

// Refresher is the refresh contract of a provider. A nil credential with a nil
// error means the refresh token is no longer usable and the integration needs
// to be reconnected.
type Refresher interface {
	Refresh(ctx context.Context, integration Integration) (*RefreshedCredential, error)
}

type RefresherFunc func(ctx context.Context, integration Integration) (*RefreshedCredential, error)

func (f RefresherFunc) Refresh(ctx context.Context, integration Integration) (*RefreshedCredential, error) {
	return f(ctx, integration)
}
