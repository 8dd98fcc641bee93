// Package idhash computes deterministic record identifiers.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeNotificationID computes a deterministic notification id using SHA256.
// Formula: SHA256(tx_signature|subscriber_id)
// Returns hex-encoded hash (64 characters).
func ComputeNotificationID(txSignature, subscriberID string) string {
	data := fmt.Sprintf("%s|%s", txSignature, subscriberID)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
