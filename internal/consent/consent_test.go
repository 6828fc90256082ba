package consent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medledger/medledger/internal/kvstore"
	"github.com/medledger/medledger/pkg/faults"
	"github.com/medledger/medledger/pkg/model"
)

// fakeClock lets tests move time forward deterministically.
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

func newTestManager(t *testing.T) (*Manager, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	m, err := NewManager(ManagerConfig{Clock: clock})
	require.NoError(t, err)
	return m, clock
}

func createRequest(t *testing.T, m *Manager) model.ConsentRequest {
	t.Helper()
	req, err := m.CreateRequest(context.Background(), "P001", "INS001", "insurer", "rec1", 24)
	require.NoError(t, err)
	return req
}

func TestCreateRequestPending(t *testing.T) {
	m, _ := newTestManager(t)
	req := createRequest(t, m)

	assert.NotEmpty(t, req.ID)
	assert.Equal(t, model.ConsentPending, req.Status)
	assert.Nil(t, req.ResolvedAt)
	assert.Equal(t, 24, req.ExpiryHours)
}

func TestCreateRequestValidation(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	var ve *faults.ValidationError
	_, err := m.CreateRequest(ctx, "", "INS001", "insurer", "rec1", 24)
	assert.ErrorAs(t, err, &ve)

	_, err = m.CreateRequest(ctx, "P001", "", "insurer", "rec1", 24)
	assert.ErrorAs(t, err, &ve)

	_, err = m.CreateRequest(ctx, "P001", "INS001", "insurer", "", 24)
	assert.ErrorAs(t, err, &ve)

	_, err = m.CreateRequest(ctx, "P001", "INS001", "insurer", "rec1", 0)
	assert.ErrorAs(t, err, &ve)
}

func TestApproveSetsResolvedAt(t *testing.T) {
	m, clock := newTestManager(t)
	req := createRequest(t, m)

	resolved, err := m.Approve(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConsentApproved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, clock.Now().UTC(), *resolved.ResolvedAt)
}

func TestResolutionIsTerminal(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	// deny then approve
	req := createRequest(t, m)
	_, err := m.Deny(ctx, req.ID)
	require.NoError(t, err)
	_, err = m.Approve(ctx, req.ID)
	assert.True(t, faults.IsState(err))

	// approve then approve
	req2 := createRequest(t, m)
	_, err = m.Approve(ctx, req2.ID)
	require.NoError(t, err)
	_, err = m.Approve(ctx, req2.ID)
	assert.True(t, faults.IsState(err))
}

func TestResolveUnknownRequest(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Approve(context.Background(), "missing")
	assert.True(t, faults.IsNotFound(err))
}

func TestConcurrentResolutionSingleWinner(t *testing.T) {
	m, _ := newTestManager(t)
	req := createRequest(t, m)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, errs[i] = m.Approve(ctx, req.ID)
			} else {
				_, errs[i] = m.Deny(ctx, req.ID)
			}
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, faults.IsState(err))
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one transition may win")
}

func TestIsGrantedAndLazyExpiry(t *testing.T) {
	m, clock := newTestManager(t)
	ctx := context.Background()
	req := createRequest(t, m)

	assert.False(t, m.IsGranted("P001", "rec1"), "pending grants nothing")

	_, err := m.Approve(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, m.IsGranted("P001", "rec1"))

	clock.Advance(23 * time.Hour)
	assert.True(t, m.IsGranted("P001", "rec1"), "inside expiry window")

	clock.Advance(2 * time.Hour)
	assert.False(t, m.IsGranted("P001", "rec1"), "window passed")

	// Stored status stays approved; only the effective state expires.
	stored, err := m.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConsentApproved, stored.Status)
	assert.Equal(t, model.ConsentExpired, stored.EffectiveStatus(clock.Now()))
}

func TestIsGrantedScopedToSubjectAndRecord(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	req := createRequest(t, m)
	_, err := m.Approve(ctx, req.ID)
	require.NoError(t, err)

	assert.False(t, m.IsGranted("P002", "rec1"))
	assert.False(t, m.IsGranted("P001", "rec2"))
}

func TestListForSubject(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.CreateRequest(ctx, "P001", "INS001", "insurer", "rec1", 24)
	require.NoError(t, err)
	_, err = m.CreateRequest(ctx, "P002", "INS001", "insurer", "rec2", 24)
	require.NoError(t, err)
	second, err := m.CreateRequest(ctx, "P001", "INS002", "insurer", "rec3", 24)
	require.NoError(t, err)

	got := m.ListForSubject(ctx, "P001")
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, second.ID, got[1].ID)
}

func TestManagerRestoresFromKV(t *testing.T) {
	dir := t.TempDir()
	kv, err := kvstore.NewStore(kvstore.StoreConfig{Paths: []string{dir}})
	require.NoError(t, err)

	m, err := NewManager(ManagerConfig{KV: kv})
	require.NoError(t, err)
	req, err := m.CreateRequest(context.Background(), "P001", "INS001", "insurer", "rec1", 24)
	require.NoError(t, err)
	_, err = m.Approve(context.Background(), req.ID)
	require.NoError(t, err)
	require.NoError(t, kv.Close())

	kv2, err := kvstore.NewStore(kvstore.StoreConfig{Paths: []string{dir}})
	require.NoError(t, err)
	defer kv2.Close()

	restored, err := NewManager(ManagerConfig{KV: kv2})
	require.NoError(t, err)

	got, err := restored.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConsentApproved, got.Status)
}
