package job_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyang/job-dispatch/internal/apperr"
	. "github.com/alanyang/job-dispatch/internal/domain/job"
	"github.com/alanyang/job-dispatch/internal/domain/skill"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{name: "open→distributed", from: StatusOpen, to: StatusDistributed, want: true},
		{name: "open→cancelled", from: StatusOpen, to: StatusCancelled, want: true},
		{name: "open→expired", from: StatusOpen, to: StatusExpired, want: true},
		{name: "distributed→in_progress", from: StatusDistributed, to: StatusInProgress, want: true},
		{name: "distributed→completed", from: StatusDistributed, to: StatusCompleted, want: true},
		{name: "distributed→expired", from: StatusDistributed, to: StatusExpired, want: true},
		{name: "in_progress→completed", from: StatusInProgress, to: StatusCompleted, want: true},
		{name: "in_progress→expired", from: StatusInProgress, to: StatusExpired, want: true},

		// Open cannot skip the distribution step
		{name: "open→in_progress invalid", from: StatusOpen, to: StatusInProgress, want: false},
		{name: "open→completed invalid", from: StatusOpen, to: StatusCompleted, want: false},

		// No way back
		{name: "in_progress→distributed invalid", from: StatusInProgress, to: StatusDistributed, want: false},
		{name: "distributed→open invalid", from: StatusDistributed, to: StatusOpen, want: false},

		// Terminal statuses
		{name: "completed→in_progress invalid", from: StatusCompleted, to: StatusInProgress, want: false},
		{name: "cancelled→open invalid", from: StatusCancelled, to: StatusOpen, want: false},
		{name: "expired→completed invalid", from: StatusExpired, to: StatusCompleted, want: false},

		// Self-transitions
		{name: "open self-transition", from: StatusOpen, to: StatusOpen, want: false},
		{name: "in_progress self-transition", from: StatusInProgress, to: StatusInProgress, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusExpired} {
		assert.True(t, s.IsTerminal(), s)
	}
	for _, s := range []Status{StatusOpen, StatusDistributed, StatusInProgress} {
		assert.False(t, s.IsTerminal(), s)
	}
}

func TestNew_NormalizesTags(t *testing.T) {
	j := New("t", "", "c", []string{" Go ", "go", "", "SQL"}, skill.Beginner, nil, nil)
	assert.Equal(t, []string{"go", "sql"}, j.Tags)
	assert.Equal(t, StatusOpen, j.Status)

	empty := New("t", "", "c", nil, skill.Beginner, nil, nil)
	assert.NotNil(t, empty.Tags)
	assert.Empty(t, empty.Tags)
}

func TestValidate(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)
	negative := -0.5

	tests := []struct {
		name    string
		job     func() Job
		wantErr bool
	}{
		{name: "complete", job: func() Job { return New("t", "", "c", nil, skill.Expert, nil, &future) }},
		{name: "missing title", job: func() Job { return New(" ", "", "c", nil, skill.Expert, nil, nil) }, wantErr: true},
		{name: "missing category", job: func() Job { return New("t", "", "", nil, skill.Expert, nil, nil) }, wantErr: true},
		{name: "unknown skill", job: func() Job { return New("t", "", "c", nil, "wizard", nil, nil) }, wantErr: true},
		{name: "negative budget", job: func() Job { return New("t", "", "c", nil, skill.Expert, &negative, nil) }, wantErr: true},
		{name: "deadline passed", job: func() Job { return New("t", "", "c", nil, skill.Expert, nil, &past) }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job().Validate(now)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, apperr.ErrValidation))
		})
	}
}
