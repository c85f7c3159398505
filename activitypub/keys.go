package activitypub

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/hkdf"
)

const encryptedKeyPrefix = "aesgcm:"

type RsaKeyPair struct {
	Private string
	Public  string
}

// GeneratePemKeypair creates a fresh RSA signing key pair in PEM encoding.
func GeneratePemKeypair() (*RsaKeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubBytes,
	})

	return &RsaKeyPair{Private: string(keyPEM), Public: string(pubPEM)}, nil
}

// KeyProvider derives and memoizes the AES key that encrypts private keys
// at rest. It is owned by the process (injected, not a package global) so
// tests can use a fresh provider per run.
type KeyProvider struct {
	mu   sync.Mutex
	keys map[string][]byte
}

func NewKeyProvider() *KeyProvider {
	return &KeyProvider{keys: make(map[string][]byte)}
}

// aesKey derives a 32-byte key from the deployment secret, cached per raw
// secret value so signing operations don't re-derive it.
func (p *KeyProvider) aesKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("key encryption secret is empty")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if key, ok := p.keys[secret]; ok {
		return key, nil
	}
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("burrow-key-at-rest"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	p.keys[secret] = key
	return key, nil
}

// Encrypt seals a private key PEM with AES-GCM under the deployment secret.
func (p *KeyProvider) Encrypt(secret, plaintext string) (string, error) {
	key, err := p.aesKey(secret)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return encryptedKeyPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (p *KeyProvider) Decrypt(secret, stored string) (string, error) {
	if !strings.HasPrefix(stored, encryptedKeyPrefix) {
		return "", fmt.Errorf("not an encrypted key")
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, encryptedKeyPrefix))
	if err != nil {
		return "", fmt.Errorf("malformed encrypted key: %w", err)
	}
	key, err := p.aesKey(secret)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", fmt.Errorf("malformed encrypted key")
	}
	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("key decryption failed: %w", err)
	}
	return string(plain), nil
}

// IsLegacyPlaintext reports whether a stored private key predates
// encryption at rest.
func IsLegacyPlaintext(stored string) bool {
	return strings.HasPrefix(stored, "-----BEGIN")
}
