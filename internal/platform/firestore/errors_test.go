package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapErrorClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		name        string
		code        codes.Code
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{name: "not found", code: codes.NotFound, notFound: true},
		{name: "already exists", code: codes.AlreadyExists, conflict: true},
		{name: "aborted", code: codes.Aborted, conflict: true},
		{name: "unavailable", code: codes.Unavailable, unavailable: true},
		{name: "exhausted", code: codes.ResourceExhausted, unavailable: true},
		{name: "permission", code: codes.PermissionDenied},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := WrapError("products.get", status.Error(tc.code, "boom"))
			var repoErr *Error
			if !errors.As(err, &repoErr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if repoErr.IsNotFound() != tc.notFound || repoErr.IsConflict() != tc.conflict || repoErr.IsUnavailable() != tc.unavailable {
				t.Fatalf("unexpected flags for %s: %+v", tc.code, repoErr)
			}
		})
	}
}

func TestWrapErrorPassesThroughCancellation(t *testing.T) {
	if err := WrapError("op", status.Error(codes.Canceled, "gone")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("op", context.DeadlineExceeded); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestWrapErrorKeepsBusinessErrorsReachable(t *testing.T) {
	sentinel := errors.New("promo exhausted")
	err := WrapError("transaction", sentinel)
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
	if IsNotFound(err) || IsConflict(err) {
		t.Fatalf("business error must not be classified: %v", err)
	}
}
