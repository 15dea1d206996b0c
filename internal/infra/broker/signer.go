package broker

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"
)

// Signer handles API authentication signatures.
type Signer struct {
	accessKey string
	secretKey string
	now       func() time.Time
}

// NewSigner creates a new Signer instance
func NewSigner(accessKey, secretKey string) *Signer {
	return &Signer{
		accessKey: accessKey,
		secretKey: secretKey,
		now:       time.Now,
	}
}

// GenerateHeaders creates the authentication headers for a request.
// path has no host; query is empty if none; body is the JSON payload, empty if none.
func (s *Signer) GenerateHeaders(method, path, query, body string) map[string]string {
	timestamp := strconv.FormatInt(s.now().UnixMilli(), 10)

	// Format: timestamp + method + requestPath + "?" + queryString + body
	fullPath := path
	if query != "" {
		fullPath = path + "?" + query
	}
	payload := timestamp + method + fullPath + body

	return map[string]string{
		"ACCESS-KEY":       s.accessKey,
		"ACCESS-SIGN":      computeHmacSha256(payload, s.secretKey),
		"ACCESS-TIMESTAMP": timestamp,
		"Content-Type":     "application/json",
	}
}

func computeHmacSha256(message string, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
