package auth

import (
	"errors"
	"testing"
	"time"
)

func newTestCodec(t *testing.T, now time.Time) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec("test-secret", "saffron-market", time.Hour,
		WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	return codec
}

func TestTokenCodecRoundTrip(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, now)

	identity := Identity{UserID: "user-1", Username: "maryam", Email: "maryam@example.com"}
	token, err := codec.Issue(identity)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	got, err := codec.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got != identity {
		t.Errorf("identity = %+v, want %+v", got, identity)
	}
}

func TestTokenCodecExpired(t *testing.T) {
	issued := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, issued)

	token, err := codec.Issue(Identity{UserID: "user-1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	later, err := NewTokenCodec("test-secret", "saffron-market", time.Hour,
		WithClock(func() time.Time { return issued.Add(2 * time.Hour) }))
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	if _, err := later.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Verify error = %v, want ErrTokenExpired", err)
	}
}

func TestTokenCodecHonoursInjectedClock(t *testing.T) {
	issued := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, issued)

	token, err := codec.Issue(Identity{UserID: "user-1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Still inside the hour-long lifetime: must verify even though the token's
	// absolute timestamps are far in the past relative to wall time.
	nearExpiry, err := NewTokenCodec("test-secret", "saffron-market", time.Hour,
		WithClock(func() time.Time { return issued.Add(59 * time.Minute) }))
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	if _, err := nearExpiry.Verify(token); err != nil {
		t.Fatalf("Verify at issued+59m: %v", err)
	}
}

func TestTokenCodecWrongSecret(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, now)

	token, err := codec.Issue(Identity{UserID: "user-1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	other, err := NewTokenCodec("different-secret", "saffron-market", time.Hour,
		WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	if _, err := other.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("Verify error = %v, want ErrTokenInvalid", err)
	}
}

func TestTokenCodecWrongIssuer(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, now)

	foreign, err := NewTokenCodec("test-secret", "other-service", time.Hour,
		WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	token, err := foreign.Issue(Identity{UserID: "user-1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := codec.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("Verify error = %v, want ErrTokenInvalid", err)
	}
}

func TestTokenCodecGarbage(t *testing.T) {
	codec := newTestCodec(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	for _, credential := range []string{"", "  ", "not.a.token"} {
		if _, err := codec.Verify(credential); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("Verify(%q) error = %v, want ErrTokenInvalid", credential, err)
		}
	}
}

func TestTokenCodecRequiresUserID(t *testing.T) {
	codec := newTestCodec(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	if _, err := codec.Issue(Identity{Username: "ghost"}); err == nil {
		t.Fatal("Issue without user id should fail")
	}
}
