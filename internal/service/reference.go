package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const referenceAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewBookingReference returns a code like HS-7K2Q9D-4821: six random base36
// characters and the last four digits of the millisecond clock. Uniqueness is
// enforced by the database, not here.
func NewBookingReference(now time.Time) (string, error) {
	code := make([]byte, 6)
	max := big.NewInt(int64(len(referenceAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate booking reference: %w", err)
		}
		code[i] = referenceAlphabet[n.Int64()]
	}
	return fmt.Sprintf("HS-%s-%04d", code, now.UnixMilli()%10000), nil
}
