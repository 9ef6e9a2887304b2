package domain

import (
	"crypto/rand"
	"fmt"
	"io"
	"time"
)

const (
	orderNumberPrefix     = "ORD"
	orderNumberTimeLayout = "20060102150405"
	orderNumberSuffixLen  = 6
	orderNumberAlphabet   = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// OrderNumberGenerator produces identifiers of the form ORD<YYYYMMDDhhmmss><6 random chars>.
// Numbers sort by creation second; uniqueness within a second relies on the random suffix
// and is enforced by storage.
type OrderNumberGenerator struct {
	now     func() time.Time
	entropy io.Reader
}

func NewOrderNumberGenerator() *OrderNumberGenerator {
	return &OrderNumberGenerator{now: time.Now, entropy: rand.Reader}
}

// NewOrderNumberGeneratorWith is used by tests to pin the clock or entropy source.
func NewOrderNumberGeneratorWith(now func() time.Time, entropy io.Reader) *OrderNumberGenerator {
	return &OrderNumberGenerator{now: now, entropy: entropy}
}

func (g *OrderNumberGenerator) Next() (string, error) {
	suffix, err := g.randomSuffix()
	if err != nil {
		return "", fmt.Errorf("generate order number: %w", err)
	}
	return orderNumberPrefix + g.now().UTC().Format(orderNumberTimeLayout) + suffix, nil
}

func (g *OrderNumberGenerator) randomSuffix() (string, error) {
	// 252 is the largest multiple of 36 below 256; higher bytes are rejected to keep the draw uniform.
	const limit = 252

	out := make([]byte, 0, orderNumberSuffixLen)
	buf := make([]byte, orderNumberSuffixLen*2)
	for len(out) < orderNumberSuffixLen {
		if _, err := io.ReadFull(g.entropy, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, orderNumberAlphabet[int(b)%len(orderNumberAlphabet)])
			if len(out) == orderNumberSuffixLen {
				break
			}
		}
	}
	return string(out), nil
}
