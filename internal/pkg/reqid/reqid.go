// internal/pkg/reqid/reqid.go
package reqid

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Prefix identifies references generated by this service. Funding account
// references carry the same prefix so the webhook path can resolve the
// owning user from an account reference alone.
const Prefix = "VASPAY"

// New builds an idempotency reference for a logical user action:
// VASPAY_<TYPE>_<userID>_<unixts>_<suffix>. It is generated once per
// action and must never be regenerated on retry of the same action —
// the unique index on transactions.reference relies on that.
func New(userID int64, txnType string) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	suffix := ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
	return fmt.Sprintf("%s_%s_%d_%d_%s", Prefix, strings.ToUpper(txnType), userID, time.Now().Unix(), suffix[len(suffix)-8:])
}

// AccountReference builds the funding account reference provisioned for a
// user's virtual account.
func AccountReference(userID int64) string {
	return fmt.Sprintf("%s%d", Prefix, userID)
}

// ParseAccountReference extracts the owning user id from a funding account
// reference. Providers sometimes reformat references with separators, so
// the input is normalised first.
func ParseAccountReference(ref string) (int64, bool) {
	cleaned := strings.ToUpper(ref)
	for _, sep := range []string{" ", "-", "_"} {
		cleaned = strings.ReplaceAll(cleaned, sep, "")
	}
	if !strings.HasPrefix(cleaned, Prefix) {
		return 0, false
	}
	var id int64
	if _, err := fmt.Sscanf(cleaned[len(Prefix):], "%d", &id); err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
