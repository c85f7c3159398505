package activitypub

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"code.superseriousbusiness.org/httpsig"
)

// maxClockSkew bounds how far an incoming request's Date header may drift
// from wall-clock before it is treated as a replay.
const maxClockSkew = 5 * time.Minute

var (
	ErrMissingSignature = errors.New("missing Signature header")
	ErrMissingDate      = errors.New("missing or malformed Date header")
	ErrStaleDate        = errors.New("Date header outside accepted window")
	ErrMissingDigest    = errors.New("missing Digest header")
	ErrDigestMismatch   = errors.New("body digest mismatch")
)

var keyIdPattern = regexp.MustCompile(`keyId="([^"]+)"`)

// SignRequest signs an outgoing HTTP request with the given private key.
// keyId format: "https://example.com/users/alice#main-key"
func SignRequest(req *http.Request, privateKey *rsa.PrivateKey, keyId string, body []byte) error {
	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		[]string{"(request-target)", "host", "date", "digest"},
		httpsig.Signature,
		0,
	)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}

	return signer.SignRequest(privateKey, keyId, req, body)
}

// Digest computes the Digest header value for a request body.
func Digest(body []byte) string {
	hash := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])
}

// ExtractKeyId pulls the keyId out of a Signature header. Empty string if
// the header is absent or carries no keyId.
func ExtractKeyId(req *http.Request) string {
	sig := req.Header.Get("Signature")
	if sig == "" {
		return ""
	}
	m := keyIdPattern.FindStringSubmatch(sig)
	if m == nil {
		return ""
	}
	return m[1]
}

// VerifyRequest verifies the HTTP signature on an incoming request against
// the given public key. Beyond the cryptographic check it enforces the
// replay window on the Date header and, on POST requests, that the Digest
// header is present and matches the body. Returns the actor URI derived
// from the signature's keyId.
func VerifyRequest(req *http.Request, publicKeyPem string, body []byte) (string, error) {
	if req.Header.Get("Signature") == "" {
		return "", ErrMissingSignature
	}

	dateHeader := req.Header.Get("Date")
	if dateHeader == "" {
		return "", ErrMissingDate
	}
	sent, err := http.ParseTime(dateHeader)
	if err != nil {
		return "", ErrMissingDate
	}
	if skew := time.Since(sent); skew > maxClockSkew || skew < -maxClockSkew {
		return "", ErrStaleDate
	}

	if req.Method == http.MethodPost || len(body) > 0 {
		digest := req.Header.Get("Digest")
		if digest == "" {
			return "", ErrMissingDigest
		}
		if digest != Digest(body) {
			return "", ErrDigestMismatch
		}
	}

	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		return "", fmt.Errorf("failed to create verifier: %w", err)
	}

	rsaPubKey, err := ParsePublicKey(publicKeyPem)
	if err != nil {
		return "", err
	}

	if err := verifier.Verify(rsaPubKey, httpsig.RSA_SHA256); err != nil {
		return "", fmt.Errorf("signature verification failed: %w", err)
	}
	keyId := verifier.KeyId()

	// keyId is usually "https://example.com/users/alice#main-key";
	// the actor URI is the part before the fragment.
	return strings.Split(keyId, "#")[0], nil
}

// ParsePrivateKey converts a PEM string to *rsa.PrivateKey.
func ParsePrivateKey(pemString string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return privateKey, nil
}

// ParsePublicKey converts a PEM string to *rsa.PublicKey. Accepts both
// PKIX and PKCS1 encodings since remote servers emit either.
func ParsePublicKey(pemString string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	if pubKey, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		rsaPubKey, ok := pubKey.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("not an RSA public key")
		}
		return rsaPubKey, nil
	}

	rsaPubKey, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return rsaPubKey, nil
}
