package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
)

// GenerateOTP returns a 6-digit numeric code drawn uniformly from
// [100000, 999999], so the code never has a leading zero. crypto/rand is
// required here: the code is a short-lived secret shared over email.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP: %w", err)
	}
	return strconv.FormatInt(n.Int64()+100000, 10), nil
}
