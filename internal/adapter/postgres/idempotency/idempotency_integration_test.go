//go:build integration

package idempotency_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyang/job-dispatch/internal/adapter/postgres/idempotency"
	"github.com/alanyang/job-dispatch/internal/testutil"
)

func TestCheckSave_FirstResultWins(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	repo := idempotency.New(pool)
	ctx := context.Background()
	key := "submit_job:" + uuid.NewString()

	_, seen, err := repo.Check(ctx, key)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, repo.Save(ctx, key, "submit_job", []byte(`{"id":"first"}`)))
	require.NoError(t, repo.Save(ctx, key, "submit_job", []byte(`{"id":"second"}`)))

	got, seen, err := repo.Check(ctx, key)
	require.NoError(t, err)
	assert.True(t, seen)
	assert.JSONEq(t, `{"id":"first"}`, string(got))
}
