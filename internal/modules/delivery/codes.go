// README: One-time pickup/delivery confirmation codes: generation, bcrypt hashing, expiry.
package delivery

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// codeHashCost is the bcrypt cost factor for code hashes.
const codeHashCost = 10

var codeRange = big.NewInt(900000)

// GenerateCode returns a 6-digit numeric one-time code, uniform in
// [100000, 999999] so there is never a leading zero.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeRange)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", n.Int64()+100000), nil
}

func HashCode(code string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(code), codeHashCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func VerifyCode(code, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}

// ExpiresIn returns the expiry timestamp for a code issued now.
func ExpiresIn(hours int) time.Time {
	return time.Now().Add(time.Duration(hours) * time.Hour)
}
