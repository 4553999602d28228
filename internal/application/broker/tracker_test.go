package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestEvaluate_FirstAssignment notifies only the incoming broker.
func TestEvaluate_FirstAssignment(t *testing.T) {
	d := Evaluate("", "broker@agency.com")
	assert.Equal(t, FirstAssignment, d.Outcome)
	assert.True(t, d.NotifyNew)
	assert.False(t, d.NotifyOld)
	assert.Equal(t, "broker@agency.com", d.IncomingEmail)
	assert.Empty(t, d.OutgoingEmail)
}

// TestEvaluate_Reassignment notifies both the outgoing and incoming broker.
func TestEvaluate_Reassignment(t *testing.T) {
	d := Evaluate("old@agency.com", "new@agency.com")
	assert.Equal(t, Reassignment, d.Outcome)
	assert.True(t, d.NotifyNew)
	assert.True(t, d.NotifyOld)
	assert.Equal(t, "old@agency.com", d.OutgoingEmail)
	assert.Equal(t, "new@agency.com", d.IncomingEmail)
}

// TestEvaluate_IdenticalSaveIsIdempotent fires nothing when the email is
// unchanged, however many times the record is saved.
func TestEvaluate_IdenticalSaveIsIdempotent(t *testing.T) {
	for i := 0; i < 3; i++ {
		d := Evaluate("broker@agency.com", "broker@agency.com")
		assert.Equal(t, NoChange, d.Outcome)
		assert.False(t, d.NotifyNew)
		assert.False(t, d.NotifyOld)
	}
}

// TestEvaluate_CaseAndWhitespaceInsensitive treats "Broker@Agency.com " as
// the same address as "broker@agency.com".
func TestEvaluate_CaseAndWhitespaceInsensitive(t *testing.T) {
	d := Evaluate("broker@agency.com", " Broker@Agency.com ")
	assert.Equal(t, NoChange, d.Outcome)
}

// TestEvaluate_EmptyIncomingIsNoChange never treats a blank save as an
// unassignment.
func TestEvaluate_EmptyIncomingIsNoChange(t *testing.T) {
	d := Evaluate("old@agency.com", "")
	assert.Equal(t, NoChange, d.Outcome)
	assert.False(t, d.NotifyOld)
}
