package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const reversalSuffix = "-REVERSAL"

// GenerateTransactionID returns "TXN" followed by the current unix millis and
// eight upper-case hex characters.
func GenerateTransactionID() string {
	return generateTransactionID(time.Now())
}

func generateTransactionID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("TXN%d%s", now.UnixMilli(), suffix)
}

// ReversalID derives the id used when undoing a step of transactionID. Reusing
// it on retries lets the account service recognise a reversal it already applied.
func ReversalID(transactionID string) string {
	return transactionID + reversalSuffix
}

// IsReversalID reports whether id was produced by ReversalID.
func IsReversalID(id string) bool {
	return strings.HasSuffix(id, reversalSuffix)
}

// ValidateTransactionID accepts any caller-supplied id that is non-empty, at
// most 64 characters, and free of whitespace.
func ValidateTransactionID(transactionID string) bool {
	if transactionID == "" || len(transactionID) > 64 {
		return false
	}
	return !strings.ContainsAny(transactionID, " \t\r\n")
}
