package ratelimit

import (
	"testing"
	"time"

	"github.com/goliatone/go-integrations/core"
)

func TestThrottledError_ToServiceError(t *testing.T) {
	err := ThrottledError{
		ProviderID: "pinterest",
		ScopeID:    "int_1",
		BucketKey:  "pins",
		RetryAfter: 3 * time.Second,
	}

	mapped := err.ToServiceError()
	if mapped == nil {
		t.Fatalf("expected mapped error")
	}
	if mapped.TextCode != core.ErrorRateLimited {
		t.Fatalf("expected %q text code, got %q", core.ErrorRateLimited, mapped.TextCode)
	}
	if mapped.Code != 429 {
		t.Fatalf("expected status code 429, got %d", mapped.Code)
	}
	if mapped.Metadata["integration_id"] != "int_1" {
		t.Fatalf("expected integration id metadata, got %+v", mapped.Metadata)
	}
	if core.KindOf(mapped) != core.KindTransientError {
		t.Fatalf("expected rate limited errors to classify as transient")
	}
}
