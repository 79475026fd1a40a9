package referral

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// CodeLength is the number of characters in a generated referral code.
	CodeLength = 10

	// DirectCode is the sentinel meaning "no referrer".
	DirectCode = "DIRECT"

	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// CodeChecker reports whether a code is already taken.
type CodeChecker func(ctx context.Context, code string) (bool, error)

// NormalizeCode trims and uppercases a code supplied by a client.
func NormalizeCode(code string) string {
	// Casers carry state and must not be shared across goroutines.
	return cases.Upper(language.Und).String(strings.TrimSpace(code))
}

// IsDirect reports whether code means "no referrer".
func IsDirect(code string) bool {
	n := NormalizeCode(code)
	return n == "" || n == DirectCode
}

// GenerateCode returns a random code that exists reports as unused. It keeps
// drawing until it finds one or ctx is done.
func GenerateCode(ctx context.Context, exists CodeChecker) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		code, err := randomCode(CodeLength)
		if err != nil {
			return "", fmt.Errorf("generate referral code: %w", err)
		}

		taken, err := exists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check referral code: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
}

func randomCode(length int) (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
