package crypto

import (
	"errors"
	"fmt"
)

// =============================================================================
// Secrets Manager
// =============================================================================

var ErrMasterSecretRequired = errors.New("master secret is required")

// SecretsManager encrypts and decrypts opaque tenant secrets with a key
// derived once at construction. Callers treat it as a black box; the
// derived key never leaves the struct.
type SecretsManager struct {
	key []byte
}

// NewSecretsManager derives the encryption key from the platform master
// secret and salt.
func NewSecretsManager(masterSecret string, salt []byte) (*SecretsManager, error) {
	if masterSecret == "" {
		return nil, ErrMasterSecretRequired
	}
	return &SecretsManager{key: DeriveKey(masterSecret, salt)}, nil
}

// EncryptString encrypts a plaintext secret into base64 ciphertext.
func (m *SecretsManager) EncryptString(plaintext string) (string, error) {
	return EncryptToBase64([]byte(plaintext), m.key)
}

// DecryptString decrypts base64 ciphertext back into the plaintext secret.
func (m *SecretsManager) DecryptString(ciphertext string) (string, error) {
	plaintext, err := DecryptFromBase64(ciphertext, m.key)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// TenantSecretNames are the credentials every tenant stack needs. Any the
// caller did not supply are generated at provisioning time.
var TenantSecretNames = []string{
	"DATABASE_PASSWORD",
	"SESSION_SECRET",
	"WEBHOOK_SIGNING_SECRET",
}

// CompleteTenantSecrets fills in generated values for every required tenant
// secret the caller did not supply. Supplied values are kept verbatim. The
// returned map is a fresh copy; the input is not modified.
func CompleteTenantSecrets(supplied map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(supplied)+len(TenantSecretNames))
	for k, v := range supplied {
		out[k] = v
	}
	for _, name := range TenantSecretNames {
		if _, ok := out[name]; ok {
			continue
		}
		value, err := GenerateSecret(32)
		if err != nil {
			return nil, fmt.Errorf("generate %s: %w", name, err)
		}
		out[name] = value
	}
	return out, nil
}
