package mobilemoney

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw callback body
const SignatureHeader = "X-Signature"

// Callback statuses
const (
	StatusSuccessful = "successful"
	StatusFailed     = "failed"
)

// Callback is the provider's payment notification
type Callback struct {
	TransactionID string `json:"transactionId"`
	Status        string `json:"status"`
	ExternalID    string `json:"externalId"`
	UserID        string `json:"userId"`
	Amount        int64  `json:"amount"`
}

// ParseCallback decodes and sanity-checks a callback body
func ParseCallback(body []byte) (*Callback, error) {
	var cb Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("invalid callback payload: %w", err)
	}
	cb.Status = strings.ToLower(strings.TrimSpace(cb.Status))

	switch {
	case cb.TransactionID == "":
		return nil, fmt.Errorf("invalid callback payload: transactionId is empty")
	case cb.ExternalID == "":
		return nil, fmt.Errorf("invalid callback payload: externalId is empty")
	case cb.Status != StatusSuccessful && cb.Status != StatusFailed:
		return nil, fmt.Errorf("invalid callback payload: unknown status %q", cb.Status)
	}
	return &cb, nil
}

// VerifySignature validates HMAC-SHA256 signature of a callback body
func VerifySignature(payload []byte, signature string, secretKey string) bool {
	if secretKey == "" || signature == "" {
		return false
	}

	h := hmac.New(sha256.New, []byte(secretKey))
	h.Write(payload)
	expected := h.Sum(nil)

	given, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}

	return hmac.Equal(given, expected)
}

// GenerateSignature creates HMAC-SHA256 signature for testing
func GenerateSignature(payload []byte, secretKey string) string {
	if secretKey == "" {
		return ""
	}

	h := hmac.New(sha256.New, []byte(secretKey))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
