package crypto

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Domain-separation labels. Keys derived under different labels never collide,
// even for identical secret and salt.
const (
	LabelWrap   = "wrap-v1"
	LabelBackup = "backup-v1"
)

// Derive runs HKDF-SHA-256 over secret with salt and info and returns a 32-byte key.
// The output is deterministic for identical inputs.
func Derive(secret, salt []byte, info string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("derive: empty secret")
	}
	r := hkdf.New(sha256.New, secret, salt, []byte(info))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}
