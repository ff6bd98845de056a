// Package session owns the identity key pair of the logged-in user.
//
// The server-side backup blob is authoritative. The local key-value store is
// only a cache that lets a session resume without running the password KDF.
package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"FromChat/internal/cli/crypto"
	"FromChat/internal/cli/envelope"
	"FromChat/internal/cli/repo"

	"go.uber.org/zap"
)

// State of the key lifecycle.
type State int

const (
	Uninitialized State = iota
	Restoring
	Ready
	Resyncing
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Restoring:
		return "restoring"
	case Ready:
		return "ready"
	case Resyncing:
		return "resyncing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Outcome reports which path a successful Login took.
type Outcome int

const (
	// OutcomeCreated: no backup existed, a first key pair was provisioned.
	OutcomeCreated Outcome = iota + 1
	// OutcomeRestored: the backup decrypted and matched the registered public key.
	OutcomeRestored
	// OutcomeResynced: the backup did not match the server, a new key pair replaced it.
	// Messages encrypted to the previous key pair can no longer be opened.
	OutcomeResynced
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeRestored:
		return "restored"
	case OutcomeResynced:
		return "resynced"
	}
	return "unknown"
}

var (
	// ErrNoCachedKeys is returned by Resume when the local store holds no key pair.
	ErrNoCachedKeys = errors.New("no cached key pair")
	// ErrStaleCache is returned by Resume when the cached key pair is not the one registered on the server.
	ErrStaleCache = errors.New("cached key pair does not match the server")
)

// KeyRegistry is the server-side key registry: public key and backup blob of the current user.
// Both getters return nil without error when nothing is stored.
type KeyRegistry interface {
	PublicKey(ctx context.Context) ([]byte, error)
	SetPublicKey(ctx context.Context, pub []byte) error
	Backup(ctx context.Context) (*crypto.BackupBlob, error)
	SetBackup(ctx context.Context, blob *crypto.BackupBlob) error
}

// Manager holds exactly one identity. It satisfies envelope.KeySource.
type Manager struct {
	registry KeyRegistry
	store    repo.KeyValueStore
	log      *zap.SugaredLogger
	params   crypto.BackupParams

	// opMu serializes lifecycle operations; mu guards state and kp.
	opMu  sync.Mutex
	mu    sync.RWMutex
	state State
	kp    *crypto.KeyPair
}

var _ envelope.KeySource = (*Manager)(nil)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(m *Manager) { m.log = l }
}

// WithBackupParams overrides the Argon2id cost used for new backups.
func WithBackupParams(p crypto.BackupParams) Option {
	return func(m *Manager) { m.params = p }
}

// New returns a Manager in the Uninitialized state.
func New(registry KeyRegistry, store repo.KeyValueStore, opts ...Option) *Manager {
	m := &Manager{
		registry: registry,
		store:    store,
		log:      zap.NewNop().Sugar(),
		params:   crypto.DefaultBackupParams,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// KeyPair returns a copy of the identity key pair. Outside Ready it fails with
// envelope.ErrKeysNotInitialized.
func (m *Manager) KeyPair() (*crypto.KeyPair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != Ready || m.kp == nil {
		return nil, envelope.ErrKeysNotInitialized
	}
	cp := *m.kp
	return &cp, nil
}

// Login reconciles the identity with the server using password.
// A wrong password leaves the manager Uninitialized and returns crypto.ErrAuthenticationFailed.
func (m *Manager) Login(ctx context.Context, password string) (Outcome, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.reset()

	blob, err := m.registry.Backup(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch backup: %w", err)
	}
	if blob == nil {
		m.setState(Resyncing)
		if err := m.provision(ctx, password); err != nil {
			m.reset()
			return 0, err
		}
		m.log.Infow("identity created", "publicKey", m.fingerprint())
		return OutcomeCreated, nil
	}

	m.setState(Restoring)
	payload, err := crypto.DecryptBackup(password, blob)
	if err != nil {
		m.reset()
		return 0, err
	}
	kp, err := crypto.KeyPairFromPrivate(payload.PrivateKey)
	crypto.Wipe(payload.PrivateKey)
	if err != nil {
		m.reset()
		return 0, err
	}

	serverPub, err := m.registry.PublicKey(ctx)
	if err != nil {
		kp.Wipe()
		m.reset()
		return 0, fmt.Errorf("fetch public key: %w", err)
	}
	if serverPub != nil && crypto.SamePublicKey(serverPub, kp.PublicKey[:]) {
		m.install(ctx, kp)
		m.log.Infow("identity restored", "publicKey", m.fingerprint())
		return OutcomeRestored, nil
	}

	// Расхождение с сервером: старые личные сообщения станут нечитаемыми.
	m.log.Warnw("backup does not match the registered public key, regenerating identity; messages encrypted to the old key become unreadable",
		"backupKey", crypto.Fingerprint(kp.PublicKey[:]),
		"serverKey", fingerprintOrNone(serverPub))
	kp.Wipe()
	m.setState(Resyncing)
	if err := m.provision(ctx, password); err != nil {
		m.reset()
		return 0, err
	}
	return OutcomeResynced, nil
}

// Resume installs the cached key pair if it is still the one registered on the server.
// Otherwise the manager stays Uninitialized and a password Login is required.
func (m *Manager) Resume(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.reset()

	kp, err := m.loadCached(ctx)
	if err != nil {
		return err
	}
	serverPub, err := m.registry.PublicKey(ctx)
	if err != nil {
		kp.Wipe()
		return fmt.Errorf("fetch public key: %w", err)
	}
	if serverPub == nil || !crypto.SamePublicKey(serverPub, kp.PublicKey[:]) {
		kp.Wipe()
		return ErrStaleCache
	}
	m.mu.Lock()
	m.kp, m.state = kp, Ready
	m.mu.Unlock()
	m.log.Infow("identity resumed from cache", "publicKey", m.fingerprint())
	return nil
}

// ChangePassword re-encrypts the backup of the current key pair under newPassword.
func (m *Manager) ChangePassword(ctx context.Context, newPassword string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	kp, err := m.KeyPair()
	if err != nil {
		return err
	}
	defer kp.Wipe()
	return m.uploadBackup(ctx, newPassword, kp)
}

// Teardown wipes the in-memory key pair. With forget it also removes the local cache.
func (m *Manager) Teardown(ctx context.Context, forget bool) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.reset()
	if !forget {
		return nil
	}
	return errors.Join(
		m.store.Delete(ctx, repo.KeyPublicKey),
		m.store.Delete(ctx, repo.KeyPrivateKey),
	)
}

// provision generates a key pair, registers it and uploads its backup.
// A failure after SetPublicKey leaves the server with a key that has no backup;
// the next Login resyncs again.
func (m *Manager) provision(ctx context.Context, password string) error {
	kp := crypto.GenerateKeyPair()
	if err := m.registry.SetPublicKey(ctx, kp.PublicKey[:]); err != nil {
		kp.Wipe()
		return fmt.Errorf("register public key: %w", err)
	}
	if err := m.uploadBackup(ctx, password, kp); err != nil {
		kp.Wipe()
		return err
	}
	m.install(ctx, kp)
	return nil
}

func (m *Manager) uploadBackup(ctx context.Context, password string, kp *crypto.KeyPair) error {
	priv := kp.PrivateKey
	blob, err := crypto.EncryptBackup(password, crypto.BackupPayload{Version: crypto.PayloadVersion, PrivateKey: priv[:]}, m.params)
	crypto.Wipe(priv[:])
	if err != nil {
		return fmt.Errorf("encrypt backup: %w", err)
	}
	if err := m.registry.SetBackup(ctx, blob); err != nil {
		return fmt.Errorf("upload backup: %w", err)
	}
	return nil
}

// install makes kp the identity and writes it to the cache. A cache write failure is not fatal.
func (m *Manager) install(ctx context.Context, kp *crypto.KeyPair) {
	m.mu.Lock()
	m.kp, m.state = kp, Ready
	m.mu.Unlock()

	enc := base64.StdEncoding
	if err := errors.Join(
		m.store.Set(ctx, repo.KeyPublicKey, enc.EncodeToString(kp.PublicKey[:])),
		m.store.Set(ctx, repo.KeyPrivateKey, enc.EncodeToString(kp.PrivateKey[:])),
	); err != nil {
		m.log.Warnw("failed to cache key pair", "error", err)
	}
}

func (m *Manager) loadCached(ctx context.Context) (*crypto.KeyPair, error) {
	privB64, ok, err := m.store.Get(ctx, repo.KeyPrivateKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoCachedKeys
	}
	pubB64, ok, err := m.store.Get(ctx, repo.KeyPublicKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoCachedKeys
	}
	priv, err := base64.StdEncoding.DecodeString(privB64)
	if err != nil {
		return nil, fmt.Errorf("decode cached private key: %w", err)
	}
	defer crypto.Wipe(priv)
	pub, err := base64.StdEncoding.DecodeString(pubB64)
	if err != nil {
		return nil, fmt.Errorf("decode cached public key: %w", err)
	}
	kp, err := crypto.KeyPairFromPrivate(priv)
	if err != nil {
		return nil, err
	}
	if !crypto.SamePublicKey(pub, kp.PublicKey[:]) {
		kp.Wipe()
		return nil, ErrStaleCache
	}
	return kp, nil
}

func (m *Manager) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.kp != nil {
		m.kp.Wipe()
		m.kp = nil
	}
	m.state = Uninitialized
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	m.log.Debugw("session state", "state", s.String())
}

func (m *Manager) fingerprint() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.kp == nil {
		return ""
	}
	return crypto.Fingerprint(m.kp.PublicKey[:])
}

func fingerprintOrNone(pub []byte) string {
	if pub == nil {
		return "none"
	}
	return crypto.Fingerprint(pub)
}
