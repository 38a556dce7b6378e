package journey

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/kuitang/pillbridge-verify/internal/errs"
)

// NormalizeCaregiverCode trims the scraped code and checks that it is a
// non-empty run of ASCII letters and digits.
func NormalizeCaregiverCode(raw string) (string, error) {
	code := strings.TrimSpace(raw)
	if code == "" {
		return "", errs.New(errs.InvalidArgument, "caregiver code is empty")
	}
	for _, r := range code {
		if !isAlnum(r) {
			return "", errs.New(errs.InvalidArgument, "caregiver code is not alphanumeric: "+code)
		}
	}
	return code, nil
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// NewEmailSuffix returns a short random suffix for --unique-emails runs.
func NewEmailSuffix() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "rerun"
	}
	return hex.EncodeToString(buf)
}
