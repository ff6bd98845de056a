package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

const (
	// KeySize: длина симметричного ключа AES-256 (в байтах).
	KeySize = 32
	// NonceSize: длина IV для AES-GCM (96 бит).
	NonceSize = 12
	// TagSize: длина тега аутентификации GCM.
	TagSize = 16
	// SaltSize: длина соли для KDF.
	SaltSize = 16
)

// randReader is the entropy source. Tests may replace it.
var randReader io.Reader = rand.Reader

// Key is an imported AES-256-GCM key.
type Key struct {
	gcm cipher.AEAD
}

// RandomBytes returns n bytes from the entropy source.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(randReader, b); err != nil {
		return nil, fmt.Errorf("read random: %w", err)
	}
	return b, nil
}

// ImportKey turns 32 raw bytes into a Key.
func ImportKey(raw []byte) (*Key, error) {
	if len(raw) != KeySize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKeySize, len(raw), KeySize)
	}
	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Key{gcm: gcm}, nil
}

// Encrypt шифрует plain под ключом key с новым случайным IV.
// Возвращает IV и шифртекст (с тегом).
func Encrypt(key *Key, plain []byte) (iv, ciphertext []byte, err error) {
	return seal(key, plain, nil)
}

// Decrypt расшифровывает шифртекст. Любое несоответствие тега даёт ErrAuthenticationFailed.
func Decrypt(key *Key, iv, ciphertext []byte) ([]byte, error) {
	return open(key, iv, ciphertext, nil)
}

// SealFile encrypts an attachment and returns iv || ciphertext.
func SealFile(key *Key, data []byte) ([]byte, error) {
	iv, ct, err := Encrypt(key, data)
	if err != nil {
		return nil, err
	}
	return append(iv, ct...), nil
}

// OpenFile reverses SealFile.
func OpenFile(key *Key, blob []byte) ([]byte, error) {
	if len(blob) < NonceSize+TagSize {
		return nil, ErrAuthenticationFailed
	}
	return Decrypt(key, blob[:NonceSize], blob[NonceSize:])
}

func seal(key *Key, plain, aad []byte) ([]byte, []byte, error) {
	iv, err := RandomBytes(NonceSize)
	if err != nil {
		return nil, nil, err
	}
	return iv, key.gcm.Seal(nil, iv, plain, aad), nil
}

func open(key *Key, iv, ciphertext, aad []byte) ([]byte, error) {
	if len(iv) != NonceSize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidNonceSize, len(iv), NonceSize)
	}
	plain, err := key.gcm.Open(nil, iv, ciphertext, aad)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plain, nil
}

// Wipe zeroes b.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
