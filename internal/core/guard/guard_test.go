package guard

import (
	"strings"
	"testing"
	"time"

	"github.com/karenmasterson/dns-gpt-backend/internal/core/domain"
)

func TestSanitizeTrimsAndAccepts(t *testing.T) {
	s := NewSanitizer(300)
	got, err := s.Sanitize("  why did RTT spike?  ")
	if err != nil {
		t.Fatalf("Sanitize() error = %v", err)
	}
	if got != "why did RTT spike?" {
		t.Fatalf("expected trimmed query, got %q", got)
	}
}

func TestSanitizeRejectsEmpty(t *testing.T) {
	s := NewSanitizer(300)
	if _, err := s.Sanitize("   "); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestSanitizeLengthBoundary(t *testing.T) {
	s := NewSanitizer(10)

	if _, err := s.Sanitize(strings.Repeat("a", 10)); err != nil {
		t.Fatalf("query of exactly max chars should pass, got %v", err)
	}
	if _, err := s.Sanitize(strings.Repeat("a", 11)); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("query of max+1 chars should be rejected, got %v", err)
	}
}

func TestSanitizeCountsCharactersNotBytes(t *testing.T) {
	s := NewSanitizer(10)

	// 10 characters, 20 bytes.
	if _, err := s.Sanitize(strings.Repeat("я", 10)); err != nil {
		t.Fatalf("10-character multibyte query should pass, got %v", err)
	}
	if _, err := s.Sanitize(strings.Repeat("я", 11)); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("11-character multibyte query should be rejected, got %v", err)
	}
}

func TestSanitizeRejectsBannedFragmentsCaseInsensitive(t *testing.T) {
	s := NewSanitizer(300)
	for _, q := range []string{
		"DROP TABLE x",
		"please Delete From anomalies",
		"shutdown the resolver",
		"run sudo rm please",
		"rm -rf /",
	} {
		if _, err := s.Sanitize(q); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("expected %q to be rejected, got %v", q, err)
		}
	}
}

func TestRateLimiterCeilingAndWindowRoll(t *testing.T) {
	const qpm = 5
	now := time.Unix(1700000000, 0)
	l := NewRateLimiter(qpm)
	l.now = func() time.Time { return now }

	for i := 0; i < qpm; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatalf("call %d within ceiling should be admitted", i+1)
		}
	}
	if l.Allow("1.2.3.4") {
		t.Fatalf("call above ceiling should be rejected")
	}

	// Unrelated clients are not affected.
	if !l.Allow("5.6.7.8") {
		t.Fatalf("other client should be admitted")
	}

	// A rejected call must not consume window capacity once it rolls.
	now = now.Add(61 * time.Second)
	if !l.Allow("1.2.3.4") {
		t.Fatalf("call after window roll should be admitted")
	}
}
