package entity

import (
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"time"

	"lukechampine.com/blake3"
)

// Receipt is the sealed, time-limited proof that one exact transaction
// fingerprint was successfully simulated. Receipts are created once by the
// simulator and are immutable afterwards; everything else reads them by value.
type Receipt struct {
	ID          string            `json:"id"`
	FeeEstimate string            `json:"feeEstimate"` // smallest denomination, decimal string
	GasLimit    uint64            `json:"gasLimit,omitempty"`
	Deltas      map[string]string `json:"deltas"` // address -> signed decimal string
	CreatedAt   time.Time         `json:"createdAt"`
	ExpiresAt   time.Time         `json:"expiresAt"`
	Fingerprint Fingerprint       `json:"-"`
	Tag         string            `json:"-"` // hex keyed hash over the sealed fields
}

// Clone returns a deep copy. Deltas is duplicated so the caller can never
// reach the original map through the copy.
func (r Receipt) Clone() Receipt {
	copied := r
	if r.Deltas != nil {
		copied.Deltas = make(map[string]string, len(r.Deltas))
		for addr, amount := range r.Deltas {
			copied.Deltas[addr] = amount
		}
	}
	return copied
}

// Expired reports whether the validity window has elapsed at the given time.
// Expiry is checked lazily on read; there is no background timer racing with use.
func (r Receipt) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// ComputeTag derives the integrity tag over {id, fingerprint, fee estimate,
// expiry} with the given process-local secret. The secret must be 32 bytes.
func (r Receipt) ComputeTag(secret []byte) string {
	h := blake3.New(32, secret)

	var writeField = func(field []byte) {
		var length [4]byte
		binary.BigEndian.PutUint32(length[:], uint32(len(field)))
		h.Write(length[:])
		h.Write(field)
	}

	writeField([]byte(r.ID))
	writeField(r.Fingerprint[:])
	writeField([]byte(r.FeeEstimate))

	var expiry [8]byte
	binary.BigEndian.PutUint64(expiry[:], uint64(r.ExpiresAt.UnixNano()))
	writeField(expiry[:])

	return hex.EncodeToString(h.Sum(nil))
}

// VerifyTag recomputes the integrity tag and compares it to the stored one in
// constant time.
func (r Receipt) VerifyTag(secret []byte) bool {
	expected := r.ComputeTag(secret)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(r.Tag)) == 1
}
