package entity

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"lukechampine.com/blake3"
)

// Fingerprint is the deterministic identity of one exact transaction request,
// used for receipt caching and receipt-to-request binding.
type Fingerprint [32]byte

// Hex returns the lowercase hex representation of the fingerprint.
func (f Fingerprint) Hex() string {
	return hex.EncodeToString(f[:])
}

// SimulationRequest describes a proposed value transfer to be simulated before
// signing. Value is an integer decimal string in the network's smallest
// denomination; it is never held as a native float.
type SimulationRequest struct {
	Sender    string  `json:"sender"`
	Recipient string  `json:"recipient"`
	Value     string  `json:"value"`
	Payload   []byte  `json:"payload,omitempty"`
	Network   Network `json:"network"`
	GasLimit  uint64  `json:"gasLimit,omitempty"` // 0 = no override
}

// Validate checks the request fields that every network requires. Network
// specific checks (address formats) live in the simulation strategies.
func (r SimulationRequest) Validate() error {
	if strings.TrimSpace(r.Sender) == "" {
		return fmt.Errorf("sender cannot be empty")
	}
	if strings.TrimSpace(r.Recipient) == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	if strings.TrimSpace(string(r.Network)) == "" {
		return fmt.Errorf("network cannot be empty")
	}
	v, err := decimal.NewFromString(r.Value)
	if err != nil {
		return fmt.Errorf("value '%s' is not a valid decimal: %w", r.Value, err)
	}
	if v.IsNegative() {
		return fmt.Errorf("value cannot be negative")
	}
	if !v.IsInteger() {
		return fmt.Errorf("value '%s' must be an integer amount in the smallest denomination", r.Value)
	}
	return nil
}

// ValueDecimal parses the request value. Validate must have passed.
func (r SimulationRequest) ValueDecimal() decimal.Decimal {
	v, err := decimal.NewFromString(r.Value)
	if err != nil {
		return decimal.Zero
	}
	return v
}

// fingerprintDomain separates request fingerprints from any other blake3 use
// in the process.
const fingerprintDomain = "tx-preflight/request/v1"

// Fingerprint derives the canonical hash over all request fields. Identical
// fields always produce the same fingerprint; changing any single field changes
// it. Fields are length-prefixed before hashing so adjacent fields can never
// collide by concatenation.
func (r SimulationRequest) Fingerprint() Fingerprint {
	return Fingerprint(blake3.Sum256(r.CanonicalBytes()))
}

// CanonicalBytes is the deterministic byte encoding the fingerprint is computed
// over. It is also what the signer boundary receives as the opaque payload:
// chain wire-format encoding is owned by the signer, not by this layer.
func (r SimulationRequest) CanonicalBytes() []byte {
	buf := make([]byte, 0, 256)
	buf = appendField(buf, []byte(fingerprintDomain))
	buf = appendField(buf, []byte(r.Sender))
	buf = appendField(buf, []byte(r.Recipient))
	buf = appendField(buf, []byte(r.Value))
	buf = appendField(buf, r.Payload)
	buf = appendField(buf, []byte(r.Network))

	var gas [8]byte
	binary.BigEndian.PutUint64(gas[:], r.GasLimit)
	buf = appendField(buf, gas[:])
	return buf
}

func appendField(buf, field []byte) []byte {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(field)))
	buf = append(buf, length[:]...)
	return append(buf, field...)
}
