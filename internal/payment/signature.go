package payment

import (
	"crypto/hmac"
	"encoding/hex"
	"hash"
	"strings"
)

// validHexMAC compares a hex encoded MAC of payload in constant time.
func validHexMAC(h func() hash.Hash, key, payload []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	signature = strings.TrimPrefix(signature, "sha256=")
	signature = strings.TrimPrefix(signature, "sha512=")
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(h, key)
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}

// SignPayload returns the hex MAC a sender would attach to payload.
func SignPayload(h func() hash.Hash, key, payload []byte) string {
	mac := hmac.New(h, key)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
