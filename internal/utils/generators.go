package utils

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

// CodeAlphabet omits characters that are easy to misread: 0/O and 1/I.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	OrderCodeLength    = 8
	DiscountCodeLength = 6
)

// RandomCode draws n characters from CodeAlphabet using crypto/rand.
func RandomCode(n int) (string, error) {
	max := big.NewInt(int64(len(CodeAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = CodeAlphabet[idx.Int64()]
	}
	return string(b), nil
}

func GenerateOrderCode() (string, error) {
	return RandomCode(OrderCodeLength)
}

func GenerateDiscountCode() (string, error) {
	return RandomCode(DiscountCodeLength)
}

// GenerateID returns a new entity id.
func GenerateID() string {
	return uuid.NewString()
}
