package credentials

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// OrganizationCodeLength is the number of characters in an organization code
const OrganizationCodeLength = 4

// organizationCodeChars is the alphabet of organization codes
const organizationCodeChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// maxCodeAttempts bounds how many random codes are tried before giving up
const maxCodeAttempts = 20

// ErrCodeSpaceExhausted is returned when no free code was found within maxCodeAttempts
var ErrCodeSpaceExhausted = errors.New("could not find a free organization code")

// GenerateOrganizationCode generates a random 4-character code of uppercase letters and digits
func GenerateOrganizationCode() (string, error) {
	code := make([]byte, OrganizationCodeLength)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(organizationCodeChars))))
		if err != nil {
			return "", err
		}
		code[i] = organizationCodeChars[num.Int64()]
	}
	return string(code), nil
}

// CodeExistsFunc reports whether a code has already been issued
type CodeExistsFunc func(ctx context.Context, code string) (bool, error)

// IssueOrganizationCode draws random codes until exists reports one as free
func IssueOrganizationCode(ctx context.Context, exists CodeExistsFunc) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := GenerateOrganizationCode()
		if err != nil {
			return "", fmt.Errorf("failed to generate organization code: %w", err)
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

// IsOrganizationCode reports whether s has the shape of an organization code
func IsOrganizationCode(s string) bool {
	if len(s) != OrganizationCodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
