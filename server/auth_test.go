package server

import (
	"errors"
	"testing"
	"time"
)

func TestNewTokenVerifierDisabledWithoutSecret(t *testing.T) {
	if NewTokenVerifier("  ") != nil {
		t.Fatalf("blank secret should disable verification")
	}
}

func TestTokenVerifierRoundTrip(t *testing.T) {
	v := NewTokenVerifier("secret")
	token, err := v.Issue("alice", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	uid, err := v.Verify(token)
	if err != nil || uid != "alice" {
		t.Fatalf("verify = %q, %v", uid, err)
	}
}

func TestTokenVerifierRejects(t *testing.T) {
	v := NewTokenVerifier("secret")
	other := NewTokenVerifier("other-secret")

	forged, _ := other.Issue("alice", time.Minute)
	expired, _ := v.Issue("alice", -time.Minute)
	noSubject, _ := v.Issue("", time.Minute)

	if _, err := v.Verify(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("empty token err = %v", err)
	}
	if _, err := v.Verify(forged); err == nil {
		t.Fatalf("token signed with another secret accepted")
	}
	if _, err := v.Verify(expired); err == nil {
		t.Fatalf("expired token accepted")
	}
	if _, err := v.Verify(noSubject); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("no-subject err = %v", err)
	}
	if _, err := v.Verify("not.a.jwt"); err == nil {
		t.Fatalf("garbage token accepted")
	}
}
