package identity

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	upperChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerChars = "abcdefghijklmnopqrstuvwxyz"
	digitChars = "0123456789"
)

// GeneratePassword returns custom unchanged when it is non-empty. Otherwise
// it builds a password whose length lies in the policy range and that holds
// at least one character of each class.
func (g *Generator) GeneratePassword(custom string) (string, error) {
	if custom != "" {
		return custom, nil
	}

	minLen, maxLen := g.policy.PasswordMinLength, g.policy.PasswordMaxLength
	symbols := g.policy.PasswordSymbols
	if symbols == "" {
		symbols = DefaultPolicy().PasswordSymbols
	}
	mandatory := []string{upperChars, lowerChars, digitChars, symbols}
	if minLen < len(mandatory) {
		minLen = len(mandatory)
	}
	if maxLen < minLen {
		maxLen = minLen
	}

	spread, err := cryptoRandInt(maxLen - minLen + 1)
	if err != nil {
		return "", err
	}
	length := minLen + spread

	buf := make([]byte, 0, length)
	for _, set := range mandatory {
		c, err := cryptoRandChar(set)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}

	all := strings.Join(mandatory, "")
	for len(buf) < length {
		c, err := cryptoRandChar(all)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}

	// Fisher-Yates so the mandatory characters do not sit at the front.
	for i := len(buf) - 1; i > 0; i-- {
		j, err := cryptoRandInt(i + 1)
		if err != nil {
			return "", err
		}
		buf[i], buf[j] = buf[j], buf[i]
	}

	return string(buf), nil
}

func cryptoRandInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("crypto/rand failure: %w", err)
	}
	return int(v.Int64()), nil
}

func cryptoRandChar(charset string) (byte, error) {
	i, err := cryptoRandInt(len(charset))
	if err != nil {
		return 0, err
	}
	return charset[i], nil
}
