package guard

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/karenmasterson/dns-gpt-backend/internal/core/domain"
)

// bannedFragments is a defense-in-depth deny list, not a security
// boundary. Matched case-insensitively as substrings.
var bannedFragments = []string{
	"drop table",
	"delete from",
	"shutdown",
	"sudo ",
	"rm -rf",
}

// Sanitizer validates inbound query text before any downstream work.
type Sanitizer struct {
	maxChars int
}

func NewSanitizer(maxChars int) *Sanitizer {
	return &Sanitizer{maxChars: maxChars}
}

// Sanitize trims the query and rejects empty, oversized, or deny-listed
// input. Returns the trimmed query on success.
func (s *Sanitizer) Sanitize(query string) (string, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return "", fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}
	// Length is measured in characters, not bytes, so non-ASCII
	// queries get the same budget.
	if utf8.RuneCountInString(q) > s.maxChars {
		return "", fmt.Errorf("%w: query too long (>%d chars)", domain.ErrInvalidInput, s.maxChars)
	}
	lower := strings.ToLower(q)
	for _, fragment := range bannedFragments {
		if strings.Contains(lower, fragment) {
			return "", fmt.Errorf("%w: query rejected by safety filter", domain.ErrInvalidInput)
		}
	}
	return q, nil
}

// RateLimiter admits at most perMinute calls per client key within a
// sliding 60-second window. Memory-resident and per-process: a best-effort
// throttle, not a distributed one.
type RateLimiter struct {
	mu        sync.Mutex
	perMinute int
	window    time.Duration
	hits      map[string][]time.Time
	now       func() time.Time
}

func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		perMinute: perMinute,
		window:    time.Minute,
		hits:      make(map[string][]time.Time),
		now:       time.Now,
	}
}

// Allow reports whether the client may proceed. An admitted call is
// recorded; a rejected one is not.
func (l *RateLimiter) Allow(clientKey string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := l.hits[clientKey][:0]
	for _, t := range l.hits[clientKey] {
		if now.Sub(t) < l.window {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.perMinute {
		l.hits[clientKey] = kept
		return false
	}

	l.hits[clientKey] = append(kept, now)
	return true
}
