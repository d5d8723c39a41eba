package account

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusPredicates(t *testing.T) {
	failed := map[Status]bool{
		StatusEmailStepFailed:            true,
		StatusPasswordStepFailed:         true,
		StatusNicknameStepFailed:         true,
		StatusTermsStepFailed:            true,
		StatusEmailVerificationFailed:    true,
		StatusIdentifierExtractionFailed: true,
		StatusCreationFailed:             true,
	}

	for _, s := range AllStatuses {
		t.Run(s.String(), func(t *testing.T) {
			assert.Equal(t, s == StatusCompleted, s.IsCompleted())
			assert.Equal(t, failed[s], s.IsFailed())
			assert.False(t, s.IsCompleted() && s.IsFailed(), "predicates must be mutually exclusive")
			assert.Equal(t, !s.IsCompleted() && !s.IsFailed(), s.IsPending())
		})
	}
}

func TestStatusTextRoundTrip(t *testing.T) {
	seen := make(map[string]bool)
	for _, s := range AllStatuses {
		name := s.String()
		assert.False(t, seen[name], "duplicate wire name %s", name)
		seen[name] = true

		parsed, err := ParseStatus(name)
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	_, err := ParseStatus("archived")
	assert.Error(t, err)

	_, err = Status(200).MarshalText()
	assert.Error(t, err)
}

func TestStatusJSON(t *testing.T) {
	data, err := json.Marshal(map[string]Status{"status": StatusIdentifierExtractionFailed})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"wid_extraction_failed"}`, string(data))

	var decoded struct {
		Status Status `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"status":"email_verified"}`), &decoded))
	assert.Equal(t, StatusEmailVerified, decoded.Status)
}

func TestTerminalStatusesHaveNoSuccessors(t *testing.T) {
	for _, from := range AllStatuses {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range AllStatuses {
			assert.False(t, from.CanTransition(to), "%s -> %s must be rejected", from, to)
		}
	}
}

func TestTransitionsOnlyMoveForward(t *testing.T) {
	order := map[Status]int{}
	for i, s := range AllStatuses {
		order[s] = i
	}
	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			if from.CanTransition(to) {
				assert.Greater(t, order[to], order[from], "%s -> %s goes backwards", from, to)
			}
		}
	}
	assert.True(t, StatusEmailVerified.CanTransition(StatusCompleted))
	assert.False(t, StatusEmailVerificationPending.CanTransition(StatusCompleted), "Completed is reachable only through EmailVerified")
}
