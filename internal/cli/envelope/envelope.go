// Package envelope implements the per-message encryption used for direct messages.
//
// Each message gets a fresh 32-byte message key. The key is wrapped under a
// wrapping key derived from the X25519 secret shared by sender and recipient
// and a per-message salt; the body and any attachments are encrypted under
// the message key itself. Because DH(a, B) == DH(b, A) the recipient rebuilds
// the wrapping key without it ever being transmitted.
package envelope

import (
	"errors"
	"fmt"

	"FromChat/internal/cli/crypto"
)

const (
	// MessageKeySize is the length of the single-use message key.
	MessageKeySize = crypto.KeySize
	// SaltSize is the length of the per-message wrapping salt.
	SaltSize = crypto.SaltSize
)

var (
	// ErrKeysNotInitialized is returned before the identity key pair is ready.
	ErrKeysNotInitialized = errors.New("keys not initialized")

	// ErrDecryptionFailed marks an envelope that cannot be opened. The UI shows
	// such a message as unreadable.
	ErrDecryptionFailed = errors.New("decryption failed")
)

// KeySource hands out the identity key pair, or ErrKeysNotInitialized.
type KeySource interface {
	KeyPair() (*crypto.KeyPair, error)
}

// Envelope is the wire form of one encrypted direct message.
// encoding/json renders every field as standard base64.
type Envelope struct {
	Salt       []byte `json:"salt"`
	IV         []byte `json:"iv"`
	IV2        []byte `json:"iv2"`
	Ciphertext []byte `json:"ciphertext"`
	WrappedMK  []byte `json:"wrappedMk"`
}

// Sealed is the output of the send path: the envelope plus attachments
// encrypted under the same message key, each laid out as iv || ciphertext.
type Sealed struct {
	Envelope Envelope
	Files    [][]byte
}

// Opened is a decrypted envelope. It keeps the message key so that attachments
// sent with the message can be decrypted.
type Opened struct {
	Plaintext []byte
	mk        *crypto.Key
}

// OpenFile decrypts one attachment of the message.
func (o *Opened) OpenFile(data []byte) ([]byte, error) {
	plain, err := crypto.OpenFile(o.mk, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}
	return plain, nil
}

// Engine seals and opens envelopes for the identity provided by its KeySource.
type Engine struct {
	keys KeySource
}

// NewEngine returns an Engine bound to keys.
func NewEngine(keys KeySource) *Engine {
	return &Engine{keys: keys}
}

// Ready fails with ErrKeysNotInitialized until the identity is available.
func (e *Engine) Ready() error {
	_, err := e.keys.KeyPair()
	return err
}

// Seal encrypts plaintext and files for the holder of recipientPublicKey.
func (e *Engine) Seal(recipientPublicKey, plaintext []byte, files ...[]byte) (*Sealed, error) {
	kp, err := e.keys.KeyPair()
	if err != nil {
		return nil, err
	}

	mk, err := crypto.RandomBytes(MessageKeySize)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(mk)
	salt, err := crypto.RandomBytes(SaltSize)
	if err != nil {
		return nil, err
	}

	wk, err := wrappingKey(kp, recipientPublicKey, salt)
	if err != nil {
		return nil, err
	}
	iv2, wrapped, err := crypto.Encrypt(wk, mk)
	if err != nil {
		return nil, err
	}

	mkKey, err := crypto.ImportKey(mk)
	if err != nil {
		return nil, err
	}
	iv, ct, err := crypto.Encrypt(mkKey, plaintext)
	if err != nil {
		return nil, err
	}

	out := &Sealed{
		Envelope: Envelope{Salt: salt, IV: iv, IV2: iv2, Ciphertext: ct, WrappedMK: wrapped},
		Files:    make([][]byte, 0, len(files)),
	}
	for _, f := range files {
		sealed, err := crypto.SealFile(mkKey, f)
		if err != nil {
			return nil, err
		}
		out.Files = append(out.Files, sealed)
	}
	return out, nil
}

// Reseal builds the replacement envelope for an edited message. It never
// reuses the original message key: an edit is cryptographically a new message.
func (e *Engine) Reseal(recipientPublicKey, plaintext []byte) (*Envelope, error) {
	s, err := e.Seal(recipientPublicKey, plaintext)
	if err != nil {
		return nil, err
	}
	return &s.Envelope, nil
}

// Open decrypts env. peerPublicKey is the other party of the conversation:
// the sender for received messages, the recipient for our own.
func (e *Engine) Open(peerPublicKey []byte, env *Envelope) (*Opened, error) {
	kp, err := e.keys.KeyPair()
	if err != nil {
		return nil, err
	}
	if env == nil {
		return nil, ErrDecryptionFailed
	}

	wk, err := wrappingKey(kp, peerPublicKey, env.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}
	mk, err := crypto.Decrypt(wk, env.IV2, env.WrappedMK)
	if err != nil {
		return nil, fmt.Errorf("%w: unwrap: %w", ErrDecryptionFailed, err)
	}
	defer crypto.Wipe(mk)

	mkKey, err := crypto.ImportKey(mk)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, crypto.ErrAuthenticationFailed)
	}
	plain, err := crypto.Decrypt(mkKey, env.IV, env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: body: %w", ErrDecryptionFailed, err)
	}
	return &Opened{Plaintext: plain, mk: mkKey}, nil
}

func wrappingKey(kp *crypto.KeyPair, peerPublicKey, salt []byte) (*crypto.Key, error) {
	if len(salt) != SaltSize {
		return nil, crypto.ErrAuthenticationFailed
	}
	shared, err := crypto.SharedSecret(kp.PrivateKey[:], peerPublicKey)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(shared)
	raw, err := crypto.Derive(shared, salt, crypto.LabelWrap)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(raw)
	return crypto.ImportKey(raw)
}
