package licensing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/HoangDuong1310/licensegate/internal/models"
	"github.com/google/uuid"
)

// memStore is an in-memory Store and PlanStore for service tests. It
// mirrors the production locking contract: WithKey holds a per-key
// mutex for the whole callback and applies mutations only on commit, so
// racing operations against one key serialize exactly as they do under
// the database row lock.
type memStore struct {
	mu          sync.Mutex
	keys        map[string]*models.LicenseKey                 // by key code
	activations map[uuid.UUID]map[string]*models.KeyActivation // keyID -> hwid
	plans       map[uuid.UUID]*models.Plan
	logs        []*models.KeyUsageLog
	keyLocks    map[uuid.UUID]*sync.Mutex
	failUsage   bool
}

func newMemStore() *memStore {
	return &memStore{
		keys:        make(map[string]*models.LicenseKey),
		activations: make(map[uuid.UUID]map[string]*models.KeyActivation),
		plans:       make(map[uuid.UUID]*models.Plan),
		keyLocks:    make(map[uuid.UUID]*sync.Mutex),
	}
}

func (m *memStore) addPlan(plan *models.Plan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[plan.ID] = plan
}

func (m *memStore) addKey(key *models.LicenseKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key.KeyCode] = copyKey(key)
	m.keyLocks[key.ID] = &sync.Mutex{}
}

func (m *memStore) getKey(keyCode string) *models.LicenseKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyKey(m.keys[keyCode])
}

func (m *memStore) activeCount(keyID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, a := range m.activations[keyID] {
		if a.Status == models.ActivationStatusActive {
			count++
		}
	}
	return count
}

func (m *memStore) activationRows(keyID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.activations[keyID])
}

func (m *memStore) logsFor(keyID uuid.UUID, action models.UsageAction) []*models.KeyUsageLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.KeyUsageLog
	for _, l := range m.logs {
		if l.KeyID == keyID && l.Action == action {
			out = append(out, l)
		}
	}
	return out
}

// Store implementation

func (m *memStore) WithKey(ctx context.Context, keyCode string, fn func(tx KeyTx) error) error {
	m.mu.Lock()
	key, ok := m.keys[keyCode]
	if !ok {
		m.mu.Unlock()
		return models.ErrKeyNotFound
	}
	lock := m.keyLocks[key.ID]
	m.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	tx := &memTx{
		key:  copyKey(m.keys[keyCode]),
		acts: make(map[string]*models.KeyActivation),
	}
	for hwid, a := range m.activations[key.ID] {
		tx.acts[hwid] = copyActivation(a)
	}
	m.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[keyCode] = tx.key
	acts := make(map[string]*models.KeyActivation, len(tx.acts))
	for hwid, a := range tx.acts {
		acts[hwid] = a
	}
	m.activations[key.ID] = acts
	return nil
}

func (m *memStore) RecordUsage(ctx context.Context, entry *models.KeyUsageLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUsage {
		return errors.New("ledger unavailable")
	}
	m.logs = append(m.logs, entry)
	return nil
}

func (m *memStore) KeyCodeExists(ctx context.Context, keyCode string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[keyCode]
	return ok, nil
}

func (m *memStore) CreateLicenseKey(ctx context.Context, key *models.LicenseKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key.KeyCode]; ok {
		return errors.New("duplicate key code")
	}
	m.keys[key.KeyCode] = copyKey(key)
	m.keyLocks[key.ID] = &sync.Mutex{}
	return nil
}

// PlanStore implementation

func (m *memStore) GetPlanByID(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	plan, ok := m.plans[id]
	if !ok {
		return nil, models.ErrPlanNotFound
	}
	return plan, nil
}

// memTx operates on working copies; memStore.WithKey commits them.
type memTx struct {
	key  *models.LicenseKey
	acts map[string]*models.KeyActivation
}

func (t *memTx) Key() *models.LicenseKey { return t.key }

func (t *memTx) CountActiveActivations(ctx context.Context) (int, error) {
	count := 0
	for _, a := range t.acts {
		if a.Status == models.ActivationStatusActive {
			count++
		}
	}
	return count, nil
}

func (t *memTx) GetActivation(ctx context.Context, hwid string) (*models.KeyActivation, error) {
	a, ok := t.acts[hwid]
	if !ok {
		return nil, nil
	}
	return copyActivation(a), nil
}

func (t *memTx) UpsertActivation(ctx context.Context, activation *models.KeyActivation) error {
	t.acts[activation.HWID] = copyActivation(activation)
	return nil
}

func (t *memTx) UpdateKey(ctx context.Context, key *models.LicenseKey) error {
	t.key = copyKey(key)
	return nil
}

func (t *memTx) DeactivateAllActivations(ctx context.Context, deactivatedAt time.Time) (int, error) {
	released := 0
	for _, a := range t.acts {
		if a.Status == models.ActivationStatusActive {
			a.Status = models.ActivationStatusDeactivated
			at := deactivatedAt
			a.DeactivatedAt = &at
			a.UpdatedAt = deactivatedAt
			released++
		}
	}
	return released, nil
}

func copyKey(k *models.LicenseKey) *models.LicenseKey {
	if k == nil {
		return nil
	}
	c := *k
	return &c
}

func copyActivation(a *models.KeyActivation) *models.KeyActivation {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
