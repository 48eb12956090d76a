package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fieldopsvoice/dispatch/internal/matcher"
	"github.com/fieldopsvoice/dispatch/internal/models"
)

func TestCache_NilClientIsSafeNoOp(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	_, ok := c.Get(ctx, "tenant-1", "job-1", "")
	assert.False(t, ok)

	c.Set(ctx, "tenant-1", "job-1", "", []matcher.Candidate{{Worker: &models.Worker{ID: "w-1"}, Score: 0.9}})
	c.Invalidate(ctx, "tenant-1", "job-1", "")
}

func TestNew_DefaultsTTLWhenNonPositive(t *testing.T) {
	c := New(nil, 0)
	assert.Greater(t, c.ttl.Seconds(), 0.0)

	c = New(nil, -1)
	assert.Greater(t, c.ttl.Seconds(), 0.0)
}

func TestKey_IsStableAndScopedByTenantJobDepartment(t *testing.T) {
	a := key("tenant-1", "job-1", "dept-1")
	b := key("tenant-1", "job-1", "dept-2")
	c := key("tenant-2", "job-1", "dept-1")

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, a, key("tenant-1", "job-1", "dept-1"))
}
