package snapshot

import (
	"encoding/hex"
	"encoding/json"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint identifies an ad hoc query for a tenant. The payload is hashed
// in its JSON form, so equal payloads always share a key.
func Fingerprint(tenantID int64, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	_, _ = h.Write([]byte(strconv.FormatInt(tenantID, 10)))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(raw)
	return hex.EncodeToString(h.Sum(nil)), nil
}
