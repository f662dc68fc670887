package secrets

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// SignWebhook computes the HMAC-SHA256 signature of a raw webhook payload,
// base64-encoded. The signature must be computed over the raw request bytes,
// never over re-serialized JSON.
func SignWebhook(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyWebhook checks a webhook signature in constant time.
// Authenticity must be established before any event enters the pipeline.
func VerifyWebhook(payload []byte, signature, secret string) bool {
	expected := SignWebhook(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
