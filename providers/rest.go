package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/ratelimit"
	"github.com/goliatone/go-integrations/transport"
)

// ExpiryDetector reports whether a non-2xx response means the access token is
// no longer accepted. reason is surfaced in TokenExpired results.
type ExpiryDetector func(statusCode int, body []byte) (expired bool, reason string)

// RequestBuilder derives a provider request from operation input.
type RequestBuilder func(params core.Params, internalID string) (RESTCall, error)

// RESTCall is one provider HTTP call relative to the client base URL.
type RESTCall struct {
	Method string
	Path   string
	Query  map[string]string
	Body   any
	// Bucket names the provider quota the call is charged to. Blank uses
	// ratelimit.DefaultBucket.
	Bucket string
}

// StatusError describes a non-2xx provider response that is not an expiry.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256]
	}
	return fmt.Sprintf("providers: %s responded %d: %s", e.Provider, e.StatusCode, strings.TrimSpace(body))
}

type RESTClient struct {
	ProviderID string
	BaseURL    string
	Adapter    *transport.RESTAdapter
	Expiry     ExpiryDetector
	Timeout    time.Duration
	RateLimit  ratelimit.Policy
}

func NewRESTClient(providerID string, baseURL string, client *http.Client, expiry ExpiryDetector) *RESTClient {
	var doer transport.HTTPDoer
	if client != nil {
		doer = client
	}
	return &RESTClient{
		ProviderID: strings.TrimSpace(providerID),
		BaseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Adapter:    transport.NewRESTAdapter(doer),
		Expiry:     expiry,
	}
}

// WithRateLimit consults policy around every call, keyed by integration.
func (c *RESTClient) WithRateLimit(policy ratelimit.Policy) *RESTClient {
	if c != nil {
		c.RateLimit = policy
	}
	return c
}

// Operation turns a request builder into a capability function.
func (c *RESTClient) Operation(build RequestBuilder) core.OperationFunc {
	return func(ctx context.Context, accessToken string, params core.Params, internalID string, integration core.Integration) core.Result {
		call, err := build(params, internalID)
		if err != nil {
			return core.Failure(err)
		}
		return c.CallFor(ctx, integration.ID, accessToken, call)
	}
}

// Call executes one request with bearer auth and classifies the response.
func (c *RESTClient) Call(ctx context.Context, accessToken string, call RESTCall) core.Result {
	return c.CallFor(ctx, "", accessToken, call)
}

// CallFor is Call with throttling state scoped to integrationID.
func (c *RESTClient) CallFor(ctx context.Context, integrationID string, accessToken string, call RESTCall) core.Result {
	if c == nil || c.Adapter == nil {
		return core.Failure(fmt.Errorf("providers: rest client is not configured"))
	}
	key := ratelimit.Key{ProviderID: c.ProviderID, ScopeID: integrationID, BucketKey: call.Bucket}
	if c.RateLimit != nil {
		if err := c.RateLimit.BeforeCall(ctx, key); err != nil {
			return core.Failure(err)
		}
	}
	req := transport.Request{
		Method:  call.Method,
		URL:     c.BaseURL + "/" + strings.TrimLeft(call.Path, "/"),
		Query:   call.Query,
		Timeout: c.Timeout,
		Headers: map[string]string{
			"Authorization": "Bearer " + accessToken,
		},
	}
	if call.Body != nil {
		payload, err := json.Marshal(call.Body)
		if err != nil {
			return core.Failure(fmt.Errorf("providers: encode %s request body: %w", c.ProviderID, err))
		}
		req.Body = payload
		req.Headers["Content-Type"] = "application/json"
	}

	res, err := c.Adapter.Do(ctx, req)
	if err != nil {
		return core.Failure(err)
	}
	if c.RateLimit != nil {
		if err := c.RateLimit.AfterCall(ctx, key, ratelimit.ResponseMeta{
			StatusCode: res.StatusCode,
			Headers:    res.Headers,
		}); err != nil {
			return core.Failure(fmt.Errorf("providers: record %s rate limit state: %w", c.ProviderID, err))
		}
	}
	return c.classify(res)
}

func (c *RESTClient) classify(res transport.Response) core.Result {
	if res.IsSuccess() {
		value, err := decodeJSON(res.Body)
		if err != nil {
			return core.Failure(fmt.Errorf("providers: decode %s response: %w", c.ProviderID, err))
		}
		return core.Success(value)
	}
	if c.Expiry != nil {
		if expired, reason := c.Expiry(res.StatusCode, res.Body); expired {
			return core.TokenExpired(reason)
		}
	}
	if res.StatusCode == http.StatusUnauthorized {
		return core.TokenExpired(fmt.Sprintf("%s responded 401", c.ProviderID))
	}
	return core.Failure(&StatusError{Provider: c.ProviderID, StatusCode: res.StatusCode, Body: string(res.Body)})
}

func decodeJSON(body []byte) (any, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}
	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return nil, err
	}
	return value, nil
}

// RequireParam reads a non-empty string parameter.
func RequireParam(params core.Params, key string) (string, error) {
	value := params.String(key)
	if value == "" {
		return "", fmt.Errorf("providers: %s is required", key)
	}
	return value, nil
}

// RequireInternalID guards operations addressed by provider account id.
func RequireInternalID(internalID string) (string, error) {
	internalID = strings.TrimSpace(internalID)
	if internalID == "" {
		return "", fmt.Errorf("providers: integration internal id is required")
	}
	return internalID, nil
}

// OptionalParams copies the listed parameters that are present as strings or
// numbers into a query map.
func OptionalParams(params core.Params, keys ...string) map[string]string {
	out := map[string]string{}
	for _, key := range keys {
		value, ok := params[key]
		if !ok || value == nil {
			continue
		}
		switch typed := value.(type) {
		case string:
			if strings.TrimSpace(typed) != "" {
				out[key] = strings.TrimSpace(typed)
			}
		case int, int32, int64, float64:
			out[key] = fmt.Sprint(typed)
		}
	}
	return out
}
