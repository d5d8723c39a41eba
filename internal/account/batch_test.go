package account

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvironment(t *testing.T) {
	for in, want := range map[string]Environment{
		"sandbox":    Sandbox,
		"qa":         Sandbox,
		"Production": Production,
		" real ":     Production,
	} {
		got, err := ParseEnvironment(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseEnvironment("staging")
	assert.True(t, IsConfigurationError(err))
}

func TestBatchConfigValidation(t *testing.T) {
	valid := BatchConfig{Environment: Sandbox, Count: 1}

	tests := []struct {
		name   string
		mutate func(c *BatchConfig)
		field  string
	}{
		{"unknown environment", func(c *BatchConfig) { c.Environment = "staging" }, "environment"},
		{"zero count", func(c *BatchConfig) { c.Count = 0 }, "count"},
		{"negative delay", func(c *BatchConfig) { c.Delay = -time.Second }, "delay"},
		{"production without base email", func(c *BatchConfig) { c.Environment = Production }, "base_email"},
		{"override with batch", func(c *BatchConfig) { c.EmailOverride = "x@benx.com"; c.Count = 2 }, "email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			_, err := NewBatchConfig(c)
			require.Error(t, err)
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	t.Run("production with base email", func(t *testing.T) {
		c, err := NewBatchConfig(BatchConfig{Environment: Production, Count: 3, BaseEmail: "qa.team@gmail.com", Delay: 0})
		require.NoError(t, err)
		assert.True(t, c.IsBatch())
	})
}

func TestStatisticsAndResult(t *testing.T) {
	snaps := []Snapshot{
		{Status: StatusCompleted},
		{Status: StatusCompleted},
		{Status: StatusPasswordStepFailed},
		{Status: StatusEmailVerificationPending},
	}

	stats := ComputeStatistics(Sandbox, snaps)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Success)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Pending)
	assert.InDelta(t, 50.0, stats.SuccessRate, 0.001)
	assert.Equal(t, 2, stats.ByStatus[StatusCompleted])
	assert.Equal(t, GradePartial, stats.Grade())

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	result := NewBatchResult(Sandbox, created, snaps)
	assert.Equal(t, 4, result.TotalAccounts)
	assert.Equal(t, 2, result.SuccessfulAccounts)
	assert.Equal(t, 1, result.FailedAccounts)
	assert.Equal(t, "2026-01-02T03:04:05Z", result.CreatedAt)

	empty := NewBatchResult(Sandbox, created, nil)
	assert.NotNil(t, empty.Accounts)
	assert.Equal(t, 0.0, ComputeStatistics(Sandbox, nil).SuccessRate)
}

func TestGrade(t *testing.T) {
	grade := func(success, total int) Grade {
		snaps := make([]Snapshot, total)
		for i := range snaps {
			if i < success {
				snaps[i].Status = StatusCompleted
			} else {
				snaps[i].Status = StatusCreationFailed
			}
		}
		return ComputeStatistics(Sandbox, snaps).Grade()
	}
	assert.Equal(t, GradePerfect, grade(5, 5))
	assert.Equal(t, GradeSuccess, grade(4, 5))
	assert.Equal(t, GradePartial, grade(1, 2))
	assert.Equal(t, GradeFailed, grade(1, 3))
	assert.Equal(t, GradeFailed, grade(0, 0))
}
