package mpesa

import (
	"encoding/base64"
	"time"
)

// TimestampLayout is the provider's timestamp format: to the second, no separators.
const TimestampLayout = "20060102150405"

// EAT is East Africa Time. The provider validates timestamps against Nairobi local time.
var EAT = time.FixedZone("EAT", 3*60*60)

func Timestamp(t time.Time) string {
	return t.In(EAT).Format(TimestampLayout)
}

// Password is base64(shortcode + passkey + timestamp). It is only valid together with the
// timestamp it was built from, so every request needs a fresh pair.
func Password(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}
