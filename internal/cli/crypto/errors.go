package crypto

import "errors"

var (
	// ErrAuthenticationFailed is returned when an AEAD tag does not verify.
	// It covers wrong backup passwords as well as tampered or corrupted ciphertext.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrInvalidKeySize is returned when raw key material has the wrong length.
	ErrInvalidKeySize = errors.New("invalid key size")

	// ErrInvalidNonceSize is returned when an IV is not 12 bytes.
	ErrInvalidNonceSize = errors.New("invalid nonce size")

	// ErrDegenerateSharedSecret is returned when the peer public key is all-zero or of low order.
	ErrDegenerateSharedSecret = errors.New("degenerate shared secret")

	// ErrUnsupportedBackupVersion is returned for backup blobs written by an unknown format version.
	ErrUnsupportedBackupVersion = errors.New("unsupported backup version")

	// ErrMalformedBackup is returned when a backup blob cannot be parsed or carries invalid parameters.
	ErrMalformedBackup = errors.New("malformed backup")
)
