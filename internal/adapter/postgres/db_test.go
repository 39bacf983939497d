package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/alanyang/job-dispatch/internal/apperr"
	"github.com/alanyang/job-dispatch/internal/domain/job"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "no rows", err: pgx.ErrNoRows, want: apperr.ErrNotFound},
		{name: "wrapped no rows", err: fmt.Errorf("scan: %w", pgx.ErrNoRows), want: apperr.ErrNotFound},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505", ConstraintName: "distributions_job_id_key"}, want: apperr.ErrConflict},
		{name: "foreign key violation", err: &pgconn.PgError{Code: "23503"}, want: apperr.ErrNotFound},
		{name: "check violation", err: &pgconn.PgError{Code: "23514"}, want: apperr.ErrValidation},
		{name: "other pg error", err: &pgconn.PgError{Code: "40001"}, want: apperr.ErrPersistence},
		{name: "network", err: errors.New("connection reset"), want: apperr.ErrPersistence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("get job", tt.err)
			assert.True(t, errors.Is(got, tt.want), "got %v", got)
			assert.Contains(t, got.Error(), "get job")
		})
	}

	assert.NoError(t, Classify("noop", nil))
}

func TestClassify_KeepsDriverError(t *testing.T) {
	cause := errors.New("connection reset")
	assert.True(t, errors.Is(Classify("list jobs", cause), cause))
}

func TestStrings(t *testing.T) {
	assert.Empty(t, Strings([]job.Status{}))
	assert.Equal(t, []string{"distributed", "in_progress"}, Strings(job.Unresolved()))
}
