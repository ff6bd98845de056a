package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
)

const (
	PublicKeySize  = curve25519.PointSize
	PrivateKeySize = curve25519.ScalarSize
)

// KeyPair is a long-term X25519 identity.
type KeyPair struct {
	PublicKey  [PublicKeySize]byte
	PrivateKey [PrivateKeySize]byte
}

// GenerateKeyPair returns a fresh key pair. It panics if the entropy source fails.
func GenerateKeyPair() *KeyPair {
	var kp KeyPair
	if _, err := io.ReadFull(randReader, kp.PrivateKey[:]); err != nil {
		panic(fmt.Sprintf("crypto: entropy source failed: %v", err))
	}
	clamp(&kp.PrivateKey)
	pub, err := curve25519.X25519(kp.PrivateKey[:], curve25519.Basepoint)
	if err != nil {
		panic(fmt.Sprintf("crypto: derive public key: %v", err))
	}
	copy(kp.PublicKey[:], pub)
	return &kp
}

// KeyPairFromPrivate rebuilds a key pair from a stored private scalar.
func KeyPairFromPrivate(priv []byte) (*KeyPair, error) {
	if len(priv) != PrivateKeySize {
		return nil, fmt.Errorf("%w: private key %d bytes", ErrInvalidKeySize, len(priv))
	}
	var kp KeyPair
	copy(kp.PrivateKey[:], priv)
	pub, err := curve25519.X25519(kp.PrivateKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	copy(kp.PublicKey[:], pub)
	return &kp, nil
}

// SharedSecret computes X25519(privateKey, peerPublicKey).
// All-zero and low-order peer keys are rejected with ErrDegenerateSharedSecret.
func SharedSecret(privateKey, peerPublicKey []byte) ([]byte, error) {
	if len(privateKey) != PrivateKeySize {
		return nil, fmt.Errorf("%w: private key %d bytes", ErrInvalidKeySize, len(privateKey))
	}
	if len(peerPublicKey) != PublicKeySize {
		return nil, fmt.Errorf("%w: public key %d bytes", ErrInvalidKeySize, len(peerPublicKey))
	}
	secret, err := curve25519.X25519(privateKey, peerPublicKey)
	if err != nil {
		return nil, ErrDegenerateSharedSecret
	}
	return secret, nil
}

// SamePublicKey compares two public keys in constant time.
func SamePublicKey(a, b []byte) bool {
	return len(a) == PublicKeySize && subtle.ConstantTimeCompare(a, b) == 1
}

// Wipe zeroes the private half.
func (kp *KeyPair) Wipe() {
	if kp == nil {
		return
	}
	Wipe(kp.PrivateKey[:])
}

// Fingerprint returns a short hex fingerprint of a public key, safe for logs.
func Fingerprint(pub []byte) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:10])
}

func clamp(k *[PrivateKeySize]byte) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}
