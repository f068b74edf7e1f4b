package core

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// fingerprintSep never appears in a user id, ISO date, decimal text or
// normalized txn_type, so joined components cannot collide across fields.
const fingerprintSep = "|"

// Fingerprint derives the idempotency key for a transaction from its
// defining fields: owner, date, exact amount, normalized type and vendor.
// Identical logical inputs always produce the same string; the amount is
// rendered from its parsed decimal so "42.50" and "42.5" agree.
func Fingerprint(userID int64, date Date, amount decimal.Decimal, txnType TxnType, vendor string) string {
	return strings.Join([]string{
		strconv.FormatInt(userID, 10),
		date.ISO(),
		amount.String(),
		string(txnType),
		vendor,
	}, fingerprintSep)
}
