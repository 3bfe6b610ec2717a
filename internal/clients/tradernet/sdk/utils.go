package sdk

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// stringify JSON-encodes v the way Python's json.dumps(v, separators=(',', ':'))
// does: no spaces, and struct field order preserved (Go's json.Marshal already
// produces compact output with no extra whitespace).
func stringify(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// sign computes the HMAC-SHA256 signature Tradernet expects: the hex digest
// of message keyed by the account's private key.
func sign(key, message string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
