package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateTransactionID(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	id := generateTransactionID(now)

	assert.True(t, strings.HasPrefix(id, "TXN1700000000123"))
	assert.Len(t, id, len("TXN1700000000123")+8)
	suffix := id[len("TXN1700000000123"):]
	assert.Equal(t, strings.ToUpper(suffix), suffix)

	assert.NotEqual(t, GenerateTransactionID(), GenerateTransactionID())
}

func TestReversalID(t *testing.T) {
	assert.Equal(t, "TXN1-REVERSAL", ReversalID("TXN1"))
	assert.True(t, IsReversalID(ReversalID("TXN1")))
	assert.False(t, IsReversalID("TXN1"))
}

func TestValidateTransactionID(t *testing.T) {
	assert.True(t, ValidateTransactionID("TXN123ABC"))
	assert.True(t, ValidateTransactionID("client-key-1"))
	assert.False(t, ValidateTransactionID(""))
	assert.False(t, ValidateTransactionID("has space"))
	assert.False(t, ValidateTransactionID(strings.Repeat("x", 65)))
}
