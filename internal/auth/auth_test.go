package auth

import (
	"errors"
	"testing"
	"time"

	"fintrack/internal/core"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "s3cret" {
		t.Fatal("hash must not equal the password")
	}
	if !CheckPassword(hash, "s3cret") {
		t.Error("correct password rejected")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("wrong password accepted")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	token, err := m.IssueToken(42)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	userID, err := m.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if userID != 42 {
		t.Errorf("user id = %d, want 42", userID)
	}
}

func TestTokenRejections(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	if _, err := m.VerifyToken("not-a-token"); !errors.Is(err, core.ErrValidation) {
		t.Errorf("garbage token: error = %v, want ErrValidation", err)
	}

	other := NewManager("other-secret", time.Hour)
	token, err := other.IssueToken(42)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := m.VerifyToken(token); !errors.Is(err, core.ErrValidation) {
		t.Errorf("wrong secret: error = %v, want ErrValidation", err)
	}

	expired := NewManager("test-secret", -time.Minute)
	token, err = expired.IssueToken(42)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := m.VerifyToken(token); !errors.Is(err, core.ErrValidation) {
		t.Errorf("expired token: error = %v, want ErrValidation", err)
	}
}
