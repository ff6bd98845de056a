package crypto

import (
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// BackupVersion is the only blob format this client writes and reads.
	BackupVersion = 1
	// PayloadVersion versions the structure sealed inside the blob.
	PayloadVersion = 1

	kdfArgon2id = "argon2id"

	maxBackupTime      = 16
	maxBackupMemoryKiB = 1 << 20
)

// BackupParams tunes the Argon2id stretch applied to the password.
type BackupParams struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// DefaultBackupParams are used by the client unless configured otherwise.
var DefaultBackupParams = BackupParams{Time: 3, MemoryKiB: 64 * 1024, Threads: 2}

// BackupBlob is the escrowed, password-encrypted copy of a private key.
// []byte fields are encoded as standard base64 by encoding/json.
type BackupBlob struct {
	Version    int    `json:"v"`
	KDF        string `json:"kdf"`
	Time       uint32 `json:"t"`
	MemoryKiB  uint32 `json:"m"`
	Threads    uint8  `json:"p"`
	Salt       []byte `json:"salt"`
	IV         []byte `json:"iv"`
	Ciphertext []byte `json:"ciphertext"`
}

// BackupPayload is the plaintext sealed inside a BackupBlob.
type BackupPayload struct {
	Version    int    `json:"version"`
	PrivateKey []byte `json:"privateKey"`
}

// EncryptBackup seals payload under a key derived from password and a fresh salt.
func EncryptBackup(password string, payload BackupPayload, params BackupParams) (*BackupBlob, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if payload.Version == 0 {
		payload.Version = PayloadVersion
	}
	salt, err := RandomBytes(SaltSize)
	if err != nil {
		return nil, err
	}
	blob := &BackupBlob{
		Version:   BackupVersion,
		KDF:       kdfArgon2id,
		Time:      params.Time,
		MemoryKiB: params.MemoryKiB,
		Threads:   params.Threads,
		Salt:      salt,
	}
	key, err := backupKey(password, blob)
	if err != nil {
		return nil, err
	}
	plain, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	defer Wipe(plain)
	blob.IV, blob.Ciphertext, err = seal(key, plain, blob.header())
	if err != nil {
		return nil, err
	}
	return blob, nil
}

// DecryptBackup opens blob with password. A wrong password and a corrupted
// ciphertext both yield ErrAuthenticationFailed. Unknown versions fail closed.
func DecryptBackup(password string, blob *BackupBlob) (*BackupPayload, error) {
	if blob == nil {
		return nil, ErrMalformedBackup
	}
	if blob.Version != BackupVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBackupVersion, blob.Version)
	}
	if blob.KDF != kdfArgon2id || len(blob.Salt) != SaltSize {
		return nil, ErrMalformedBackup
	}
	params := BackupParams{Time: blob.Time, MemoryKiB: blob.MemoryKiB, Threads: blob.Threads}
	if err := params.validate(); err != nil {
		return nil, err
	}
	key, err := backupKey(password, blob)
	if err != nil {
		return nil, err
	}
	plain, err := open(key, blob.IV, blob.Ciphertext, blob.header())
	if err != nil {
		return nil, err
	}
	defer Wipe(plain)

	var payload BackupPayload
	if err := json.Unmarshal(plain, &payload); err != nil {
		return nil, ErrMalformedBackup
	}
	if payload.Version != PayloadVersion {
		return nil, fmt.Errorf("%w: payload %d", ErrUnsupportedBackupVersion, payload.Version)
	}
	if len(payload.PrivateKey) != PrivateKeySize {
		return nil, ErrMalformedBackup
	}
	return &payload, nil
}

// Marshal renders the blob as the JSON string stored server-side.
func (b *BackupBlob) Marshal() (string, error) {
	out, err := json.Marshal(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ParseBackupBlob decodes the server-side JSON string.
func ParseBackupBlob(s string) (*BackupBlob, error) {
	var b BackupBlob
	if err := json.Unmarshal([]byte(s), &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBackup, err)
	}
	return &b, nil
}

// header is authenticated as associated data so that KDF parameters cannot be swapped.
func (b *BackupBlob) header() []byte {
	return fmt.Appendf(nil, "v=%d;kdf=%s;t=%d;m=%d;p=%d", b.Version, b.KDF, b.Time, b.MemoryKiB, b.Threads)
}

func backupKey(password string, blob *BackupBlob) (*Key, error) {
	stretched := argon2.IDKey([]byte(password), blob.Salt, blob.Time, blob.MemoryKiB, blob.Threads, KeySize)
	defer Wipe(stretched)
	raw, err := Derive(stretched, blob.Salt, LabelBackup)
	if err != nil {
		return nil, err
	}
	defer Wipe(raw)
	return ImportKey(raw)
}

func (p BackupParams) validate() error {
	if p.Time == 0 || p.Time > maxBackupTime || p.MemoryKiB < 8 || p.MemoryKiB > maxBackupMemoryKiB || p.Threads == 0 {
		return fmt.Errorf("%w: kdf parameters out of range", ErrMalformedBackup)
	}
	return nil
}
