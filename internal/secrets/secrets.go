// Package secrets encrypts connection passwords at rest with AES-GCM.
// The key is opt-in: when DOCC_ENC_KEY is unset, passwords pass through
// unchanged so local setups keep working without key management.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"
	"os"

	"github.com/pkg/errors"
)

const keyEnvVar = "DOCC_ENC_KEY"

// prefix marks encrypted values so plaintext rows written before a key was
// configured still decode.
const prefix = "enc:"

// encryptionKey loads a 32-byte key from environment variable DOCC_ENC_KEY.
func encryptionKey() ([]byte, error) {
	b64 := os.Getenv(keyEnvVar)
	if b64 == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, errors.Wrap(err, "invalid base64 key")
	}
	if len(key) != 32 {
		return nil, errors.New("encryption key must be 32 bytes")
	}
	return key, nil
}

func EncryptPassword(plain string) (string, error) {
	key, err := encryptionKey()
	if err != nil {
		return "", err
	}
	if key == nil {
		return plain, nil
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
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ciphertext := gcm.Seal(nonce, nonce, []byte(plain), nil)
	return prefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

func DecryptPassword(stored string) (string, error) {
	if len(stored) < len(prefix) || stored[:len(prefix)] != prefix {
		return stored, nil
	}
	key, err := encryptionKey()
	if err != nil {
		return "", err
	}
	if key == nil {
		return "", errors.New("encrypted password found but " + keyEnvVar + " is not set")
	}
	data, err := base64.StdEncoding.DecodeString(stored[len(prefix):])
	if err != nil {
		return "", errors.Wrap(err, "invalid ciphertext encoding")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
