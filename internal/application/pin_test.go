package application

import (
	"errors"
	"testing"
)

var testArgon2idParams = Argon2idParams{
	Memory:      64,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

func TestHashAndVerifyPIN(t *testing.T) {
	t.Parallel()

	hash, err := HashPIN("4821", testArgon2idParams)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := VerifyPIN(hash, "4821"); err != nil {
		t.Fatalf("expected matching PIN to verify, got %v", err)
	}
	if err := VerifyPIN(hash, "4822"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	other, err := HashPIN("4821", testArgon2idParams)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other == hash {
		t.Fatalf("expected a fresh salt per hash")
	}
}

func TestHashPINRejectsShortPIN(t *testing.T) {
	t.Parallel()

	var vErr *ValidationError
	if _, err := HashPIN("12", testArgon2idParams); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestVerifyPINRejectsMalformedHash(t *testing.T) {
	t.Parallel()

	for _, encoded := range []string{"", "plain", "$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA", "$argon2id$v=18$m=64,t=1,p=1$c2FsdA$aGFzaA"} {
		if err := VerifyPIN(encoded, "1234"); err == nil {
			t.Fatalf("expected error for %q", encoded)
		}
	}
	if err := VerifyPIN("$argon2id$v=18$m=64,t=1,p=1$c2FsdA$aGFzaA", "1234"); !errors.Is(err, ErrIncompatiblePINVersion) {
		t.Fatalf("expected ErrIncompatiblePINVersion, got %v", err)
	}
}

func TestPINGuard(t *testing.T) {
	t.Parallel()

	disabled, err := NewPINGuard("  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if disabled.Enabled() || disabled.Check("") != nil {
		t.Fatalf("expected an empty hash to disable the guard")
	}

	if _, err := NewPINGuard("not-a-hash"); !errors.Is(err, ErrInvalidPINHash) {
		t.Fatalf("expected ErrInvalidPINHash, got %v", err)
	}

	hash, err := HashPIN("4821", testArgon2idParams)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	guard, err := NewPINGuard(hash)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !guard.Enabled() {
		t.Fatalf("expected guard to be enabled")
	}
	for _, pin := range []string{"", "0000"} {
		if err := guard.Check(pin); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized for %q, got %v", pin, err)
		}
	}
	for i := 0; i < 2; i++ {
		if err := guard.Check("4821"); err != nil {
			t.Fatalf("check %d: expected success, got %v", i, err)
		}
	}
	if err := guard.Check("4822"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected a different PIN to be rejected after a cached success, got %v", err)
	}
}
