package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"FromChat/internal/cli/crypto"
	"FromChat/internal/cli/envelope"
	"FromChat/internal/cli/repo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = crypto.BackupParams{Time: 1, MemoryKiB: 64, Threads: 1}

// fakeRegistry: серверный реестр ключей в памяти.
type fakeRegistry struct {
	mu        sync.Mutex
	pub       []byte
	blob      *crypto.BackupBlob
	setPubErr error
	backupErr error
	uploads   int
}

func (f *fakeRegistry) PublicKey(context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.pub...), nil
}

func (f *fakeRegistry) SetPublicKey(_ context.Context, pub []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setPubErr != nil {
		return f.setPubErr
	}
	f.pub = append([]byte(nil), pub...)
	return nil
}

func (f *fakeRegistry) Backup(context.Context) (*crypto.BackupBlob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blob, nil
}

func (f *fakeRegistry) SetBackup(_ context.Context, blob *crypto.BackupBlob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.backupErr != nil {
		return f.backupErr
	}
	f.blob = blob
	f.uploads++
	return nil
}

func (f *fakeRegistry) serverPub() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pub
}

// memKV: repo.KeyValueStore в памяти.
type memKV struct {
	mu sync.Mutex
	m  map[string]string
}

func newMemKV() *memKV { return &memKV{m: map[string]string{}} }

func (s *memKV) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *memKV) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *memKV) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

var _ repo.KeyValueStore = (*memKV)(nil)

func newManager(reg KeyRegistry, kv repo.KeyValueStore) *Manager {
	return New(reg, kv, WithBackupParams(testParams))
}

func publicKey(t *testing.T, m *Manager) []byte {
	t.Helper()
	kp, err := m.KeyPair()
	require.NoError(t, err)
	return append([]byte(nil), kp.PublicKey[:]...)
}

func TestLogin_FirstTimeProvisionsIdentity(t *testing.T) {
	ctx := context.Background()
	reg, kv := &fakeRegistry{}, newMemKV()
	m := newManager(reg, kv)

	_, err := m.KeyPair()
	assert.ErrorIs(t, err, envelope.ErrKeysNotInitialized)

	out, err := m.Login(ctx, "pw")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, out)
	assert.Equal(t, Ready, m.State())

	pub := publicKey(t, m)
	assert.Equal(t, reg.serverPub(), pub)
	require.NotNil(t, reg.blob)

	cached, ok, _ := kv.Get(ctx, repo.KeyPublicKey)
	assert.True(t, ok)
	assert.NotEmpty(t, cached)
	_, ok, _ = kv.Get(ctx, repo.KeyPrivateKey)
	assert.True(t, ok)
}

func TestLogin_RestoresFromBackupOnAnotherDevice(t *testing.T) {
	ctx := context.Background()
	reg := &fakeRegistry{}
	first := newManager(reg, newMemKV())
	_, err := first.Login(ctx, "pw")
	require.NoError(t, err)
	pub := publicKey(t, first)

	second := newManager(reg, newMemKV())
	out, err := second.Login(ctx, "pw")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRestored, out)
	assert.Equal(t, pub, publicKey(t, second))
	assert.Equal(t, 1, reg.uploads, "restore must not re-upload the backup")
}

func TestLogin_WrongPasswordStaysUninitialized(t *testing.T) {
	ctx := context.Background()
	reg := &fakeRegistry{}
	_, err := newManager(reg, newMemKV()).Login(ctx, "right")
	require.NoError(t, err)
	pubBefore := reg.serverPub()

	m := newManager(reg, newMemKV())
	_, err = m.Login(ctx, "wrong")
	assert.ErrorIs(t, err, crypto.ErrAuthenticationFailed)
	assert.Equal(t, Uninitialized, m.State())
	_, err = m.KeyPair()
	assert.ErrorIs(t, err, envelope.ErrKeysNotInitialized)
	assert.Equal(t, pubBefore, reg.serverPub(), "wrong password must not touch the server")
	assert.Equal(t, 1, reg.uploads)
}

func TestLogin_ResyncWhenServerHasNoPublicKey(t *testing.T) {
	ctx := context.Background()
	reg, kv := &fakeRegistry{}, newMemKV()
	m := newManager(reg, kv)
	_, err := m.Login(ctx, "pw")
	require.NoError(t, err)
	oldPub := publicKey(t, m)
	oldCached, _, _ := kv.Get(ctx, repo.KeyPublicKey)

	// сервер потерял публичный ключ
	reg.mu.Lock()
	reg.pub = nil
	reg.mu.Unlock()

	out, err := m.Login(ctx, "pw")
	require.NoError(t, err)
	assert.Equal(t, OutcomeResynced, out)
	newPub := publicKey(t, m)
	assert.NotEqual(t, oldPub, newPub)
	assert.Equal(t, reg.serverPub(), newPub)

	newCached, _, _ := kv.Get(ctx, repo.KeyPublicKey)
	assert.NotEqual(t, oldCached, newCached)

	// новая резервная копия под тем же паролем содержит новый ключ
	restored, err := newManager(reg, newMemKV()).Login(ctx, "pw")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRestored, restored)
}

func TestLogin_ResyncOrphansOldMessages(t *testing.T) {
	ctx := context.Background()
	regA, regB := &fakeRegistry{}, &fakeRegistry{}
	alice := newManager(regA, newMemKV())
	bob := newManager(regB, newMemKV())
	_, err := alice.Login(ctx, "a")
	require.NoError(t, err)
	_, err = bob.Login(ctx, "b")
	require.NoError(t, err)

	sealed, err := envelope.NewEngine(alice).Seal(regB.serverPub(), []byte("before resync"))
	require.NoError(t, err)

	// чужой ключ на сервере → Bob перегенерирует пару
	regB.mu.Lock()
	regB.pub = crypto.GenerateKeyPair().PublicKey[:]
	regB.mu.Unlock()
	out, err := bob.Login(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, OutcomeResynced, out)

	_, err = envelope.NewEngine(bob).Open(regA.serverPub(), &sealed.Envelope)
	assert.ErrorIs(t, err, envelope.ErrDecryptionFailed)
}

func TestLogin_UploadFailureLeavesUninitialized(t *testing.T) {
	ctx := context.Background()
	reg := &fakeRegistry{backupErr: errors.New("network down")}
	m := newManager(reg, newMemKV())

	_, err := m.Login(ctx, "pw")
	require.Error(t, err)
	assert.Equal(t, Uninitialized, m.State())
	// известный разрыв: ключ уже зарегистрирован, резервной копии нет
	assert.NotNil(t, reg.serverPub())
	assert.Nil(t, reg.blob)

	reg.backupErr = nil
	out, err := m.Login(ctx, "pw")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, out)
}

func TestResume(t *testing.T) {
	ctx := context.Background()
	reg, kv := &fakeRegistry{}, newMemKV()
	m := newManager(reg, kv)

	assert.ErrorIs(t, m.Resume(ctx), ErrNoCachedKeys)

	_, err := m.Login(ctx, "pw")
	require.NoError(t, err)
	pub := publicKey(t, m)

	again := newManager(reg, kv)
	require.NoError(t, again.Resume(ctx))
	assert.Equal(t, Ready, again.State())
	assert.Equal(t, pub, publicKey(t, again))

	// сервер сменил ключ: кэш больше не авторитетен
	reg.mu.Lock()
	reg.pub = crypto.GenerateKeyPair().PublicKey[:]
	reg.mu.Unlock()
	stale := newManager(reg, kv)
	assert.ErrorIs(t, stale.Resume(ctx), ErrStaleCache)
	assert.Equal(t, Uninitialized, stale.State())
}

func TestResume_CorruptedCache(t *testing.T) {
	ctx := context.Background()
	kv := newMemKV()
	_ = kv.Set(ctx, repo.KeyPrivateKey, "%%%")
	_ = kv.Set(ctx, repo.KeyPublicKey, "AAAA")
	m := newManager(&fakeRegistry{}, kv)
	assert.Error(t, m.Resume(ctx))
	assert.Equal(t, Uninitialized, m.State())
}

func TestTeardown(t *testing.T) {
	ctx := context.Background()
	reg, kv := &fakeRegistry{}, newMemKV()
	m := newManager(reg, kv)
	_, err := m.Login(ctx, "pw")
	require.NoError(t, err)

	require.NoError(t, m.Teardown(ctx, false))
	assert.Equal(t, Uninitialized, m.State())
	_, ok, _ := kv.Get(ctx, repo.KeyPrivateKey)
	assert.True(t, ok, "cache survives a plain teardown")

	require.NoError(t, m.Resume(ctx))
	require.NoError(t, m.Teardown(ctx, true))
	_, ok, _ = kv.Get(ctx, repo.KeyPrivateKey)
	assert.False(t, ok)
	_, err = m.KeyPair()
	assert.ErrorIs(t, err, envelope.ErrKeysNotInitialized)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	reg := &fakeRegistry{}
	m := newManager(reg, newMemKV())

	assert.ErrorIs(t, m.ChangePassword(ctx, "new"), envelope.ErrKeysNotInitialized)

	_, err := m.Login(ctx, "old")
	require.NoError(t, err)
	pub := publicKey(t, m)
	require.NoError(t, m.ChangePassword(ctx, "new"))

	_, err = newManager(reg, newMemKV()).Login(ctx, "old")
	assert.ErrorIs(t, err, crypto.ErrAuthenticationFailed)

	other := newManager(reg, newMemKV())
	out, err := other.Login(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRestored, out)
	assert.Equal(t, pub, publicKey(t, other))
}

func TestKeyPair_ReturnsCopy(t *testing.T) {
	m := newManager(&fakeRegistry{}, newMemKV())
	_, err := m.Login(context.Background(), "pw")
	require.NoError(t, err)

	kp, err := m.KeyPair()
	require.NoError(t, err)
	kp.Wipe()
	again, err := m.KeyPair()
	require.NoError(t, err)
	assert.NotEqual(t, [crypto.PrivateKeySize]byte{}, again.PrivateKey)
}

func TestStateAndOutcomeStrings(t *testing.T) {
	assert.Equal(t, "resyncing", Resyncing.String())
	assert.Equal(t, "restored", OutcomeRestored.String())
}
