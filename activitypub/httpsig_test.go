package activitypub

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/http"
	"testing"
	"time"
)

func generateTestKeyPair(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}
	pubBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		t.Fatalf("Failed to encode public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	return privateKey, string(pubPEM)
}

func signedTestRequest(t *testing.T, key *rsa.PrivateKey, keyId string, body []byte) *http.Request {
	t.Helper()
	req, err := http.NewRequest("POST", "https://burrow.example/inbox", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", "burrow.example")

	if err := SignRequest(req, key, keyId, body); err != nil {
		t.Fatalf("SignRequest failed: %v", err)
	}
	return req
}

func TestSignAndVerifyRoundtrip(t *testing.T) {
	key, pubPEM := generateTestKeyPair(t)
	body := []byte(`{"type":"Create"}`)
	keyId := "https://remote.example/users/alice#main-key"

	req := signedTestRequest(t, key, keyId, body)

	actorURI, err := VerifyRequest(req, pubPEM, body)
	if err != nil {
		t.Fatalf("VerifyRequest failed: %v", err)
	}
	if actorURI != "https://remote.example/users/alice" {
		t.Errorf("Expected actor URI derived from keyId, got %s", actorURI)
	}
}

func TestVerifyRequestWrongKey(t *testing.T) {
	key, _ := generateTestKeyPair(t)
	_, otherPubPEM := generateTestKeyPair(t)
	body := []byte(`{"type":"Create"}`)

	req := signedTestRequest(t, key, "https://remote.example/users/alice#main-key", body)

	if _, err := VerifyRequest(req, otherPubPEM, body); err == nil {
		t.Error("Expected verification to fail with wrong public key")
	}
}

func TestVerifyRequestTamperedBody(t *testing.T) {
	key, pubPEM := generateTestKeyPair(t)
	body := []byte(`{"type":"Create"}`)

	req := signedTestRequest(t, key, "https://remote.example/users/alice#main-key", body)

	tampered := []byte(`{"type":"Delete"}`)
	_, err := VerifyRequest(req, pubPEM, tampered)
	if !errors.Is(err, ErrDigestMismatch) {
		t.Errorf("Expected ErrDigestMismatch, got %v", err)
	}
}

func TestVerifyRequestMissingSignature(t *testing.T) {
	_, pubPEM := generateTestKeyPair(t)

	req, _ := http.NewRequest("POST", "https://burrow.example/inbox", nil)
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))

	_, err := VerifyRequest(req, pubPEM, nil)
	if !errors.Is(err, ErrMissingSignature) {
		t.Errorf("Expected ErrMissingSignature, got %v", err)
	}
}

func TestVerifyRequestStaleDate(t *testing.T) {
	key, pubPEM := generateTestKeyPair(t)
	body := []byte(`{"type":"Create"}`)

	req := signedTestRequest(t, key, "https://remote.example/users/alice#main-key", body)
	req.Header.Set("Date", time.Now().Add(-10*time.Minute).UTC().Format(http.TimeFormat))

	_, err := VerifyRequest(req, pubPEM, body)
	if !errors.Is(err, ErrStaleDate) {
		t.Errorf("Expected ErrStaleDate, got %v", err)
	}
}

func TestVerifyRequestFutureDate(t *testing.T) {
	key, pubPEM := generateTestKeyPair(t)
	body := []byte(`{"type":"Create"}`)

	req := signedTestRequest(t, key, "https://remote.example/users/alice#main-key", body)
	req.Header.Set("Date", time.Now().Add(10*time.Minute).UTC().Format(http.TimeFormat))

	_, err := VerifyRequest(req, pubPEM, body)
	if !errors.Is(err, ErrStaleDate) {
		t.Errorf("Expected ErrStaleDate, got %v", err)
	}
}

func TestVerifyRequestMissingDate(t *testing.T) {
	key, pubPEM := generateTestKeyPair(t)
	body := []byte(`{"type":"Create"}`)

	req := signedTestRequest(t, key, "https://remote.example/users/alice#main-key", body)
	req.Header.Del("Date")

	_, err := VerifyRequest(req, pubPEM, body)
	if !errors.Is(err, ErrMissingDate) {
		t.Errorf("Expected ErrMissingDate, got %v", err)
	}
}

func TestVerifyRequestMissingDigest(t *testing.T) {
	key, pubPEM := generateTestKeyPair(t)
	body := []byte(`{"type":"Create"}`)

	req := signedTestRequest(t, key, "https://remote.example/users/alice#main-key", body)
	req.Header.Del("Digest")

	_, err := VerifyRequest(req, pubPEM, body)
	if !errors.Is(err, ErrMissingDigest) {
		t.Errorf("Expected ErrMissingDigest, got %v", err)
	}
}

func TestVerifyRequestBodylessPostRequiresDigest(t *testing.T) {
	_, pubPEM := generateTestKeyPair(t)

	req, _ := http.NewRequest("POST", "https://burrow.example/inbox", nil)
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Signature", `keyId="https://remote.example/users/alice#main-key",algorithm="rsa-sha256",headers="(request-target) host date",signature="abc"`)

	_, err := VerifyRequest(req, pubPEM, nil)
	if !errors.Is(err, ErrMissingDigest) {
		t.Errorf("Expected ErrMissingDigest for a bodyless POST, got %v", err)
	}
}

func TestExtractKeyId(t *testing.T) {
	req, _ := http.NewRequest("POST", "https://burrow.example/inbox", nil)

	if got := ExtractKeyId(req); got != "" {
		t.Errorf("Expected empty keyId without Signature header, got %q", got)
	}

	req.Header.Set("Signature", `keyId="https://remote.example/users/alice#main-key",algorithm="rsa-sha256",headers="(request-target) host date digest",signature="abc"`)
	want := "https://remote.example/users/alice#main-key"
	if got := ExtractKeyId(req); got != want {
		t.Errorf("ExtractKeyId = %q, want %q", got, want)
	}
}

func TestDigestFormat(t *testing.T) {
	d := Digest([]byte("hello"))
	if len(d) == 0 || d[:8] != "SHA-256=" {
		t.Errorf("Digest should carry the SHA-256= prefix, got %q", d)
	}
}

func TestParsePrivateKeyInvalidPEM(t *testing.T) {
	if _, err := ParsePrivateKey("not a valid PEM"); err == nil {
		t.Error("Expected error for invalid PEM")
	}
	if _, err := ParsePrivateKey(""); err == nil {
		t.Error("Expected error for empty string")
	}
}

func TestParsePublicKeyBothEncodings(t *testing.T) {
	key, pkixPEM := generateTestKeyPair(t)

	if _, err := ParsePublicKey(pkixPEM); err != nil {
		t.Errorf("Failed to parse PKIX public key: %v", err)
	}

	pkcs1PEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey),
	})
	if _, err := ParsePublicKey(string(pkcs1PEM)); err != nil {
		t.Errorf("Failed to parse PKCS1 public key: %v", err)
	}

	if _, err := ParsePublicKey("garbage"); err == nil {
		t.Error("Expected error for invalid PEM")
	}
}
