package mpesa

import (
	"regexp"
	"strings"

	"github.com/Domenick1991/transkenya/internal/domain"
)

// CountryCode is the Kenyan calling code M-Pesa expects in place of the trunk prefix.
const CountryCode = "254"

// Safaricom and Airtel mobile ranges: 07xx and 01xx.
var kenyanMobile = regexp.MustCompile(`^(?:254|0)([17]\d{8})$`)

var phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")

// NormalizePhone returns the number in the 2547XXXXXXXX form used by the gateway. A leading
// "0" is replaced by the calling code and numbers already in that form pass through.
func NormalizePhone(raw string) (string, error) {
	s := phoneSeparators.Replace(strings.TrimSpace(raw))
	if strings.HasPrefix(s, "+"+CountryCode) {
		s = s[1:]
	}
	m := kenyanMobile.FindStringSubmatch(s)
	if m == nil {
		return "", domain.InvalidPhoneNumber(raw)
	}
	return CountryCode + m[1], nil
}
