package authcore

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/catequesis/authcore/password"
)

const testPassword = "Correct-Horse-7!"

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// mockAccountStore is an in-memory AccountStore with the same semantics the
// interface demands from real implementations.
type mockAccountStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
	byIdent  map[string]string
	nextID   int
}

func newMockAccountStore() *mockAccountStore {
	return &mockAccountStore{
		accounts: make(map[string]*Account),
		byIdent:  make(map[string]string),
	}
}

func (m *mockAccountStore) put(acct *Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[acct.ID] = acct
	if acct.Username != "" {
		m.byIdent[acct.Username] = acct.ID
	}
	if acct.Email != "" {
		m.byIdent[acct.Email] = acct.ID
	}
}

func (m *mockAccountStore) snapshot(id string) *Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[id]
	if !ok {
		return nil
	}
	cp := *acct
	return &cp
}

func (m *mockAccountStore) GetByIdentifier(_ context.Context, identifier string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byIdent[identifier]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *m.accounts[id]
	return &cp, nil
}

func (m *mockAccountStore) GetByID(_ context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *acct
	return &cp, nil
}

func (m *mockAccountStore) Create(_ context.Context, input CreateAccountInput) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.byIdent[input.Username]; taken {
		return nil, ErrDuplicateAccount
	}
	if _, taken := m.byIdent[input.Email]; taken {
		return nil, ErrDuplicateAccount
	}

	m.nextID++
	acct := &Account{
		ID:           "acct-" + strconv.Itoa(m.nextID),
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: input.PasswordHash,
		Status:       input.Status,
		Roles:        input.Roles,
	}
	m.accounts[acct.ID] = acct
	m.byIdent[input.Username] = acct.ID
	m.byIdent[input.Email] = acct.ID

	cp := *acct
	return &cp, nil
}

func (m *mockAccountStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	acct.PasswordHash = hash
	acct.RequiresPasswordChange = false
	return nil
}

func (m *mockAccountStore) IncrementFailedAttempts(_ context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[id]
	if !ok {
		return 0, ErrAccountNotFound
	}
	acct.FailedAttempts++
	return acct.FailedAttempts, nil
}

func (m *mockAccountStore) SetLock(_ context.Context, id string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	acct.LockedUntil = &until
	acct.Status = StatusLocked
	return nil
}

func (m *mockAccountStore) ClearLock(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	acct.FailedAttempts = 0
	acct.LockedUntil = nil
	if acct.Status == StatusLocked {
		acct.Status = StatusActive
	}
	return nil
}

func (m *mockAccountStore) RecordLoginSuccess(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	acct.FailedAttempts = 0
	acct.LockedUntil = nil
	if acct.Status == StatusLocked {
		acct.Status = StatusActive
	}
	acct.LastLogin = &at
	return nil
}

func (m *mockAccountStore) UpdateStatus(_ context.Context, id string, status AccountStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	acct.Status = status
	return nil
}

type recordedMail struct {
	To      string
	Subject string
	Body    string
}

type mockMailer struct {
	mu   sync.Mutex
	sent []recordedMail
}

func (m *mockMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, recordedMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *mockMailer) all() []recordedMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]recordedMail, len(m.sent))
	copy(out, m.sent)
	return out
}

// testConfig keeps Argon2 at the hardening floor so the suite stays fast.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Token.Issuer = "authcore-test"
	cfg.Password.Memory = 16384
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Reset.EnumerationDelayMin = 0
	cfg.Reset.EnumerationDelayMax = 0
	cfg.Metrics.Enabled = true
	return cfg
}

type testEnv struct {
	svc    *Service
	store  *mockAccountStore
	mailer *mockMailer
	clock  *fakeClock
	mr     *miniredis.Miniredis
}

func newTestService(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	mr, rdb := newTestRedis(t)
	store := newMockAccountStore()
	mailer := &mockMailer{}
	clock := newFakeClock()

	svc, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(store).
		WithEmailSender(mailer).
		WithClock(clock).
		Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(svc.Close)

	return &testEnv{svc: svc, store: store, mailer: mailer, clock: clock, mr: mr}
}

// seedAccount hashes testPassword with the service's cost parameters and
// stores an active account.
func seedAccount(t *testing.T, env *testEnv, mutate func(*Account)) *Account {
	t.Helper()

	hasher, err := password.NewHasher(testConfig().Password)
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	hash, err := hasher.Hash(context.Background(), testPassword)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	acct := &Account{
		ID:           "acct-alice",
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: hash,
		Status:       StatusActive,
		Roles:        []string{"member"},
	}
	if mutate != nil {
		mutate(acct)
	}
	env.store.put(acct)
	return acct
}

func mustLogin(t *testing.T, env *testEnv, req LoginRequest) *LoginResult {
	t.Helper()

	result, err := env.svc.Login(context.Background(), req)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return result
}
