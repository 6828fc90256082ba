package verify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medledger/medledger/internal/audit"
	"github.com/medledger/medledger/internal/consent"
	"github.com/medledger/medledger/internal/contentstore"
	"github.com/medledger/medledger/internal/crypt"
	"github.com/medledger/medledger/internal/ledger"
	"github.com/medledger/medledger/internal/records"
	"github.com/medledger/medledger/internal/retry"
	"github.com/medledger/medledger/pkg/faults"
	"github.com/medledger/medledger/pkg/model"
	"github.com/medledger/medledger/pkg/session"
)

var insurer = session.Actor{ID: "INS001", Type: "insurer"}

type harness struct {
	engine   *Engine
	records  *records.Repo
	ledger   *ledger.MemoryLedger
	store    *contentstore.MemoryStore
	consents *consent.Manager
	trail    *audit.Trail
}

func newHarness(t *testing.T, mode Mode) *harness {
	t.Helper()

	repo, err := records.NewRepo(nil)
	require.NoError(t, err)
	consents, err := consent.NewManager(consent.ManagerConfig{})
	require.NoError(t, err)
	trail, err := audit.NewTrail(audit.TrailConfig{})
	require.NoError(t, err)

	h := &harness{
		records:  repo,
		ledger:   ledger.NewMemoryLedger(),
		store:    contentstore.NewMemoryStore(nil),
		consents: consents,
		trail:    trail,
	}
	h.engine = NewEngine(Config{
		Records:  h.records,
		Ledger:   h.ledger,
		Store:    h.store,
		Consents: h.consents,
		Audit:    h.trail,
		Mode:     mode,
		Retry: retry.Policy{
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
			MaxElapsedTime:  50 * time.Millisecond,
		},
	})
	return h
}

// seedRecord stores ciphertext, anchors it and registers the record.
func (h *harness) seedRecord(t *testing.T, id string, ciphertext []byte) model.Record {
	t.Helper()
	ctx := context.Background()

	addr, err := h.store.Put(ctx, ciphertext)
	require.NoError(t, err)

	digest := crypt.HashBytes(ciphertext).Hex()
	_, err = h.ledger.Anchor(ctx, id, string(addr), digest)
	require.NoError(t, err)

	rec := model.Record{
		ID:          id,
		SubjectID:   "P001",
		Type:        "Blood Test",
		Title:       "CBC",
		CustodianID: "HOSP001",
		CreatedAt:   time.Now().UTC(),
		Address:     string(addr),
		ContentHash: digest,
		Status:      model.RecordVerified,
	}
	require.NoError(t, h.records.Save(ctx, rec))
	return rec
}

func (h *harness) grantConsent(t *testing.T, recordID string) {
	t.Helper()
	ctx := context.Background()
	req, err := h.consents.CreateRequest(ctx, "P001", insurer.ID, insurer.Type, recordID, 24)
	require.NoError(t, err)
	_, err = h.consents.Approve(ctx, req.ID)
	require.NoError(t, err)
}

func TestVerifyValidRecord(t *testing.T) {
	h := newHarness(t, ModeAdvisory)
	rec := h.seedRecord(t, "rec1", []byte("sealed content"))
	h.grantConsent(t, rec.ID)

	result, err := h.engine.Verify(context.Background(), rec.ID, insurer)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Equal(t, result.LocalHash, result.OnChainHash)
	assert.True(t, result.ConsentGranted)
	assert.NotEmpty(t, result.BlockRef)
	assert.Equal(t, 1, h.trail.Len())
}

func TestVerifyWithoutConsentProceedsInAdvisoryMode(t *testing.T) {
	h := newHarness(t, ModeAdvisory)
	rec := h.seedRecord(t, "rec1", []byte("sealed content"))

	result, err := h.engine.Verify(context.Background(), rec.ID, insurer)
	require.NoError(t, err)
	assert.True(t, result.IsValid, "validity is pure hash match")
	assert.False(t, result.ConsentGranted)

	entries := h.trail.Query(context.Background(), audit.Filter{Action: model.ActionView})
	require.Len(t, entries, 1)
	assert.Equal(t, "not granted", entries[0].Detail[model.DetailConsentState])
	assert.True(t, entries[0].Verified)
}

func TestVerifyEnforcingModeBlocksAfterAuditing(t *testing.T) {
	h := newHarness(t, ModeEnforcing)
	rec := h.seedRecord(t, "rec1", []byte("sealed content"))

	result, err := h.engine.Verify(context.Background(), rec.ID, insurer)
	assert.True(t, faults.IsState(err))
	assert.False(t, result.ConsentGranted)
	assert.Equal(t, 1, h.trail.Len(), "blocked access is still audited")

	h.grantConsent(t, rec.ID)
	_, err = h.engine.Verify(context.Background(), rec.ID, insurer)
	assert.NoError(t, err)
}

func TestVerifyDetectsTampering(t *testing.T) {
	h := newHarness(t, ModeAdvisory)
	rec := h.seedRecord(t, "rec1", []byte("sealed content"))
	h.grantConsent(t, rec.ID)

	require.True(t, h.store.Tamper(contentstore.Address(rec.Address)))

	result, err := h.engine.Verify(context.Background(), rec.ID, insurer)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.NotEqual(t, result.LocalHash, result.OnChainHash)

	entries := h.trail.Query(context.Background(), audit.Filter{RecordID: rec.ID})
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Verified)
	assert.Equal(t, "true", entries[0].Detail[model.DetailHashMismatch])

	// Only the verification engine flips the record status.
	got, err := h.records.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RecordTampered, got.Status)
}

func TestVerifyUnknownRecordStillAudited(t *testing.T) {
	h := newHarness(t, ModeAdvisory)

	_, err := h.engine.Verify(context.Background(), "missing", insurer)
	assert.True(t, faults.IsNotFound(err))
	assert.Equal(t, 1, h.trail.Len())
}

func TestVerifyMissingContentDegrades(t *testing.T) {
	h := newHarness(t, ModeAdvisory)
	rec := h.seedRecord(t, "rec1", []byte("sealed content"))

	// Simulate a record whose address no longer resolves.
	other := model.Record{
		ID:          "rec2",
		SubjectID:   "P001",
		CustodianID: "HOSP001",
		Address:     "bafy-dangling",
		ContentHash: rec.ContentHash,
		Status:      model.RecordVerified,
	}
	require.NoError(t, h.records.Save(context.Background(), other))

	result, err := h.engine.Verify(context.Background(), "rec2", insurer)
	require.NoError(t, err, "missing content is degraded, not propagated")
	assert.False(t, result.IsValid)

	entries := h.trail.Query(context.Background(), audit.Filter{RecordID: "rec2"})
	require.Len(t, entries, 1)
	assert.Equal(t, "content missing", entries[0].Detail[model.DetailError])
}

func TestVerifyStoreUnreachableDegrades(t *testing.T) {
	h := newHarness(t, ModeAdvisory)
	rec := h.seedRecord(t, "rec1", []byte("sealed content"))

	h.store.SetFault(errors.New("backend down"))

	result, err := h.engine.Verify(context.Background(), rec.ID, insurer)
	require.NoError(t, err)
	assert.False(t, result.IsValid)

	entries := h.trail.Query(context.Background(), audit.Filter{RecordID: rec.ID})
	require.Len(t, entries, 1)
	assert.Equal(t, "content store unreachable", entries[0].Detail[model.DetailError])
}

func TestVerifyLedgerUnreachableDegrades(t *testing.T) {
	h := newHarness(t, ModeAdvisory)
	rec := h.seedRecord(t, "rec1", []byte("sealed content"))

	h.ledger.SetFault(errors.New("chain down"))

	result, err := h.engine.Verify(context.Background(), rec.ID, insurer)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Empty(t, result.OnChainHash)
	assert.Equal(t, 1, h.trail.Len())
}

func TestEveryVerifyAppendsExactlyOneEntry(t *testing.T) {
	h := newHarness(t, ModeAdvisory)
	rec := h.seedRecord(t, "rec1", []byte("sealed content"))

	ctx := context.Background()
	before := h.trail.Len()

	_, _ = h.engine.Verify(ctx, rec.ID, insurer)
	_, _ = h.engine.Verify(ctx, "missing", insurer)
	h.store.SetFault(errors.New("down"))
	_, _ = h.engine.Verify(ctx, rec.ID, insurer)

	assert.Equal(t, before+3, h.trail.Len())
}
