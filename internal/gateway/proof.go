package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var errSecretRequired = errors.New("gateway signing secret is required")

// ProofVerifier checks payment proofs and webhook bodies signed with HMAC-SHA256.
type ProofVerifier struct {
	secret []byte
}

// NewProofVerifier builds a verifier for the shared gateway secret.
func NewProofVerifier(secret string) (*ProofVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errSecretRequired
	}
	return &ProofVerifier{secret: []byte(secret)}, nil
}

// Sign returns the hex signature the gateway issues for orderID|paymentID.
func (v *ProofVerifier) Sign(orderID, paymentID string) string {
	return v.sign([]byte(orderID + "|" + paymentID))
}

// Verify reports whether signature matches orderID|paymentID. Comparison is constant time.
func (v *ProofVerifier) Verify(orderID, paymentID, signature string) bool {
	return v.equal(v.Sign(orderID, paymentID), signature)
}

// VerifyBody checks a webhook signature computed over the raw request body.
func (v *ProofVerifier) VerifyBody(body []byte, signature string) bool {
	return v.equal(v.sign(body), signature)
}

// SignBody signs a raw body. Used by the simulated gateway and tests.
func (v *ProofVerifier) SignBody(body []byte) string {
	return v.sign(body)
}

func (v *ProofVerifier) sign(payload []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (v *ProofVerifier) equal(expected, provided string) bool {
	provided = strings.TrimSpace(provided)
	if len(provided) != len(expected) {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(provided))
}
