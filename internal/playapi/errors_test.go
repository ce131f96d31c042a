package playapi

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationf_NamesField(t *testing.T) {
	err := Validationf("end_time", "must not be before start_time")
	if err.Kind != KindValidation {
		t.Fatalf("expected validation kind, got %s", err.Kind)
	}
	if err.Field != "end_time" {
		t.Fatalf("expected field end_time, got %q", err.Field)
	}
	if err.Retriable {
		t.Fatal("validation errors are never retriable")
	}
}

func TestCoerce_PassesStructuredThrough(t *testing.T) {
	orig := Permanent(404, nil, "not found")
	wrapped := fmt.Errorf("handler: %w", orig)
	got := Coerce(wrapped)
	if got != orig {
		t.Fatalf("expected the original structured error, got %v", got)
	}
}

func TestCoerce_WrapsRawAsInternal(t *testing.T) {
	raw := errors.New("boom")
	got := Coerce(raw)
	if got.Kind != KindInternal {
		t.Fatalf("expected internal kind, got %s", got.Kind)
	}
	if !errors.Is(got, raw) {
		t.Fatal("expected the cause to be preserved")
	}
}

func TestCoerce_Nil(t *testing.T) {
	if Coerce(nil) != nil {
		t.Fatal("expected nil for nil")
	}
}

func TestTransient_Retriable(t *testing.T) {
	if !Transient(503, nil, "unavailable").Retriable {
		t.Fatal("transient errors are retriable")
	}
	if Permanent(404, nil, "not found").Retriable {
		t.Fatal("permanent errors are not retriable")
	}
}

func TestError_StructuredAccessors(t *testing.T) {
	err := Transient(429, nil, "rate limited")
	if err.ErrorKind() != "upstream_transient" {
		t.Fatalf("unexpected kind string: %s", err.ErrorKind())
	}
	if !err.ErrorRetriable() {
		t.Fatal("expected retriable")
	}
}
