package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseRequest() SimulationRequest {
	return SimulationRequest{
		Sender:    "0x1111111111111111111111111111111111111111",
		Recipient: "0x2222222222222222222222222222222222222222",
		Value:     "1000000000000000000",
		Payload:   []byte{0xde, 0xad},
		Network:   "ethereum",
		GasLimit:  21000,
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	r1 := baseRequest()
	r2 := baseRequest()

	assert.Equal(t, r1.Fingerprint(), r2.Fingerprint())
}

func TestFingerprint_ChangesWithAnyField(t *testing.T) {
	base := baseRequest()

	mutations := map[string]SimulationRequest{
		"sender":    func() SimulationRequest { r := baseRequest(); r.Sender = "0x3333333333333333333333333333333333333333"; return r }(),
		"recipient": func() SimulationRequest { r := baseRequest(); r.Recipient = "0x4444444444444444444444444444444444444444"; return r }(),
		"value":     func() SimulationRequest { r := baseRequest(); r.Value = "1000000000000000001"; return r }(),
		"payload":   func() SimulationRequest { r := baseRequest(); r.Payload = []byte{0xbe, 0xef}; return r }(),
		"network":   func() SimulationRequest { r := baseRequest(); r.Network = "bitcoin"; return r }(),
		"gasLimit":  func() SimulationRequest { r := baseRequest(); r.GasLimit = 50000; return r }(),
	}

	for field, mutated := range mutations {
		assert.NotEqual(t, base.Fingerprint(), mutated.Fingerprint(), "changing %s must change the fingerprint", field)
	}
}

func TestFingerprint_FieldBoundaries(t *testing.T) {
	// Length prefixing must prevent adjacent fields from colliding by concatenation.
	r1 := baseRequest()
	r1.Sender = "ab"
	r1.Recipient = "c"

	r2 := baseRequest()
	r2.Sender = "a"
	r2.Recipient = "bc"

	assert.NotEqual(t, r1.Fingerprint(), r2.Fingerprint())
}

func TestSimulationRequest_Validate(t *testing.T) {
	require.NoError(t, baseRequest().Validate())

	noSender := baseRequest()
	noSender.Sender = "  "
	assert.Error(t, noSender.Validate())

	noRecipient := baseRequest()
	noRecipient.Recipient = ""
	assert.Error(t, noRecipient.Validate())

	noNetwork := baseRequest()
	noNetwork.Network = ""
	assert.Error(t, noNetwork.Validate())

	badValue := baseRequest()
	badValue.Value = "1.5e3x"
	assert.Error(t, badValue.Validate())

	negativeValue := baseRequest()
	negativeValue.Value = "-1"
	assert.Error(t, negativeValue.Validate())

	// Fractions cannot exist in the smallest denomination; accepting one would
	// certify a transfer the chain can never execute.
	fractionalValue := baseRequest()
	fractionalValue.Value = "1.5"
	assert.Error(t, fractionalValue.Validate())

	trailingZeroFraction := baseRequest()
	trailingZeroFraction.Value = "1.0"
	assert.NoError(t, trailingZeroFraction.Validate(), "a zero fractional part is still an integer")
}

func TestSimulationRequest_ValueDecimal(t *testing.T) {
	r := baseRequest()
	assert.Equal(t, "1000000000000000000", r.ValueDecimal().String())
}
