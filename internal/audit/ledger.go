// Package audit implements the append-only, checksum-chained compliance
// ledger (§3 Audit Entry, §8 "audit chain" property). Writes for a single
// tenant are serialized through a single-writer-per-tenant queue so the
// checksum chain can never race with itself (§5 "Audit log append").
//
// The checksum chain itself is a few lines of crypto/sha256 — no example
// repo in the pack ships a ledger or merkle library, so this stays on the
// standard library deliberately (see DESIGN.md).
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
	"github.com/fieldopsvoice/dispatch/internal/models"
)

// Store is the persistence contract the Ledger writes through; satisfied
// by storage.Postgres in production and a fake in tests.
type Store interface {
	LastAuditEntry(ctx context.Context, tenantID string) (*models.AuditEntry, error)
	AppendAuditEntry(ctx context.Context, entry *models.AuditEntry) error
	AllAuditEntries(ctx context.Context, tenantID string) ([]*models.AuditEntry, error)
}

const genesisChecksum = "genesis"

// Ledger serializes writes per tenant to maintain the checksum chain.
type Ledger struct {
	store Store
	log   *zap.Logger

	mu      sync.Mutex
	writers map[string]*sync.Mutex
}

func New(store Store, log *zap.Logger) *Ledger {
	return &Ledger{store: store, log: log, writers: make(map[string]*sync.Mutex)}
}

func (l *Ledger) writerFor(tenantID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.writers[tenantID]
	if !ok {
		w = &sync.Mutex{}
		l.writers[tenantID] = w
	}
	return w
}

// Append writes a new chained entry. A failing audit write is treated as
// fatal for the caller's request per §7 — callers must roll back any
// durable side effect if Append returns an error.
func (l *Ledger) Append(ctx context.Context, tenantID, actor, action, entityKind, entityID string, detail map[string]any) (*models.AuditEntry, error) {
	w := l.writerFor(tenantID)
	w.Lock()
	defer w.Unlock()

	prev, err := l.store.LastAuditEntry(ctx, tenantID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "audit_read_failed", "could not read last audit entry", err)
	}
	prevChecksum := genesisChecksum
	var seq int64 = 1
	if prev != nil {
		prevChecksum = prev.Checksum
		seq = prev.Sequence + 1
	}

	entry := &models.AuditEntry{
		TenantID:     tenantID,
		Sequence:     seq,
		Actor:        actor,
		Action:       action,
		EntityKind:   entityKind,
		EntityID:     entityID,
		Detail:       detail,
		Timestamp:    time.Now().UTC(),
		PrevChecksum: prevChecksum,
	}
	entry.Checksum, err = checksumFor(entry)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "audit_checksum_failed", "could not compute checksum", err)
	}

	if err := l.store.AppendAuditEntry(ctx, entry); err != nil {
		l.log.Error("audit append failed", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, apperr.Wrap(apperr.Internal, "audit_write_failed", "could not append audit entry", err)
	}
	return entry, nil
}

// VerifyChain recomputes checksums from genesis and reports the first
// row (if any) whose stored checksum does not match, per §8's audit
// chain property.
func (l *Ledger) VerifyChain(ctx context.Context, tenantID string) (ok bool, failedAt int64, err error) {
	entries, err := l.store.AllAuditEntries(ctx, tenantID)
	if err != nil {
		return false, 0, apperr.Wrap(apperr.Internal, "audit_read_failed", "could not read ledger", err)
	}
	prevChecksum := genesisChecksum
	for _, e := range entries {
		if e.PrevChecksum != prevChecksum {
			return false, e.Sequence, nil
		}
		want, err := checksumFor(e)
		if err != nil {
			return false, e.Sequence, apperr.Wrap(apperr.Internal, "audit_checksum_failed", "could not recompute checksum", err)
		}
		if want != e.Checksum {
			return false, e.Sequence, nil
		}
		prevChecksum = e.Checksum
	}
	return true, 0, nil
}

// checksumFor computes sha256(prior_checksum ⊕ canonical row bytes),
// implementing §3's "integrity checksum over (prior checksum ⨁ row
// bytes)" with XOR-style chaining realized by hashing the concatenation.
func checksumFor(e *models.AuditEntry) (string, error) {
	row := struct {
		TenantID   string         `json:"tenant_id"`
		Sequence   int64          `json:"sequence"`
		Actor      string         `json:"actor"`
		Action     string         `json:"action"`
		EntityKind string         `json:"entity_kind"`
		EntityID   string         `json:"entity_id"`
		Detail     map[string]any `json:"detail"`
		Timestamp  time.Time      `json:"timestamp"`
	}{e.TenantID, e.Sequence, e.Actor, e.Action, e.EntityKind, e.EntityID, e.Detail, e.Timestamp}

	rowBytes, err := json.Marshal(row)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(e.PrevChecksum))
	h.Write(rowBytes)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Fatal wraps an error to indicate a durable-audit failure that must
// roll back the caller's side effect; it is a thin readability helper
// over apperr.Wrap for callers in jobservice/scheduling/api.
func Fatal(action string, err error) error {
	return apperr.Wrap(apperr.Internal, "audit_required", fmt.Sprintf("audit write for %q failed, rolling back", action), err)
}
