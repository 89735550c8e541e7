package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/hanko-field/commerce/internal/platform/config"
)

type stubIDTokenClient struct {
	plainCalls   int
	revokedCalls int
	deadline     time.Time
	err          error
}

func (s *stubIDTokenClient) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	s.plainCalls++
	s.deadline, _ = ctx.Deadline()
	if s.err != nil {
		return nil, s.err
	}
	return &firebaseauth.Token{UID: idToken}, nil
}

func (s *stubIDTokenClient) VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	s.revokedCalls++
	s.deadline, _ = ctx.Deadline()
	if s.err != nil {
		return nil, s.err
	}
	return &firebaseauth.Token{UID: idToken}, nil
}

func TestFirebaseVerifierPlainVerification(t *testing.T) {
	client := &stubIDTokenClient{}
	verifier := newFirebaseVerifier(client, false, WithFirebaseTimeout(2*time.Second))

	before := time.Now()
	token, err := verifier.VerifyIDToken(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token.UID != "user-1" {
		t.Fatalf("expected uid user-1, got %s", token.UID)
	}
	if client.plainCalls != 1 || client.revokedCalls != 0 {
		t.Fatalf("expected plain verification only, got plain=%d revoked=%d", client.plainCalls, client.revokedCalls)
	}
	if client.deadline.IsZero() || client.deadline.After(before.Add(3*time.Second)) {
		t.Fatalf("expected bounded deadline, got %v", client.deadline)
	}
}

func TestFirebaseVerifierChecksRevocation(t *testing.T) {
	revoked := errors.New("id token has been revoked")
	client := &stubIDTokenClient{err: revoked}
	verifier := newFirebaseVerifier(client, true)

	if _, err := verifier.VerifyIDToken(context.Background(), "user-1"); !errors.Is(err, revoked) {
		t.Fatalf("expected revocation error, got %v", err)
	}
	if client.revokedCalls != 1 || client.plainCalls != 0 {
		t.Fatalf("expected revocation check, got plain=%d revoked=%d", client.plainCalls, client.revokedCalls)
	}
}

func TestNewFirebaseVerifierRequiresProject(t *testing.T) {
	if _, err := NewFirebaseVerifier(context.Background(), config.FirebaseConfig{}); err == nil {
		t.Fatal("expected error for missing project id")
	}
}

func TestFirebaseVerifierNilClient(t *testing.T) {
	var verifier *FirebaseVerifier
	if _, err := verifier.VerifyIDToken(context.Background(), "tok"); err == nil {
		t.Fatal("expected error for nil verifier")
	}
}
