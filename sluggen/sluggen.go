// Package sluggen builds short-code candidates.
// Generators should be safe for concurrent use.
package sluggen

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
)

const (
	base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// maxCodeLength mirrors the longest short code the store accepts.
	maxCodeLength = 64
)

// Generator generates URL slugs.
type Generator interface {
	Generate(length int) (string, error)
}

type base62Generator struct{}

// NewBase62 returns a new base62 slug generator.
func NewBase62() Generator {
	return &base62Generator{}
}

// Generate generates a random base62 string of the specified length.
func (g *base62Generator) Generate(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("length must be positive")
	}

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	for i := range b {
		b[i] = base62Chars[int(b[i])%len(base62Chars)]
	}

	return string(b), nil
}

// TakenFunc reports whether a candidate code is already in use.
type TakenFunc func(ctx context.Context, code string) (bool, error)

// Suggester proposes free alternatives for a code that is already taken.
type Suggester struct {
	gen      Generator
	taken    TakenFunc
	valid    func(code string) error
	attempts int
}

// NewSuggester returns a Suggester. valid filters candidates (nil accepts
// everything); gen defaults to base62.
func NewSuggester(taken TakenFunc, valid func(string) error, gen Generator) *Suggester {
	if gen == nil {
		gen = NewBase62()
	}
	if valid == nil {
		valid = func(string) error { return nil }
	}
	return &Suggester{gen: gen, taken: taken, valid: valid, attempts: 8}
}

// Suggest returns up to n lower-case alternatives for base: numeric suffixes
// first (base-2, base-3, ...), then random base62 suffixes. Lookup errors
// end the search early with whatever was found so far; suggestions are
// hints, never a reason to fail the caller.
func (s *Suggester) Suggest(ctx context.Context, base string, n int) []string {
	if n <= 0 {
		return nil
	}
	base = strings.ToLower(strings.TrimSpace(base))
	out := make([]string, 0, n)
	seen := make(map[string]bool)

	try := func(candidate string) bool {
		if seen[candidate] || s.valid(candidate) != nil {
			return true
		}
		seen[candidate] = true

		taken, err := s.taken(ctx, candidate)
		if err != nil {
			return false
		}
		if !taken {
			out = append(out, candidate)
		}
		return true
	}

	for i := 2; i < 2+n+2 && len(out) < n; i++ {
		if !try(withSuffix(base, fmt.Sprintf("%d", i))) {
			return out
		}
	}

	for attempt := 0; attempt < s.attempts && len(out) < n; attempt++ {
		suffix, err := s.gen.Generate(3)
		if err != nil {
			return out
		}
		if !try(withSuffix(base, strings.ToLower(suffix))) {
			return out
		}
	}

	return out
}

// withSuffix joins base and suffix with a dash, trimming base so the
// result stays within maxCodeLength.
func withSuffix(base, suffix string) string {
	if keep := maxCodeLength - len(suffix) - 1; len(base) > keep {
		base = base[:keep]
	}
	return base + "-" + suffix
}
