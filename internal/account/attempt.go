package account

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TimestampLayout is how attempt timestamps appear in result files.
const TimestampLayout = "2006-01-02 15:04:05"

// Attempt is one pass through the creation pipeline for a single identity.
// It is owned by the orchestration loop; pipeline stages receive it and may
// only move its status forward.
type Attempt struct {
	ID          string
	Email       string
	Password    string
	Nickname    string
	Environment Environment
	CreatedAt   time.Time
	UpdatedAt   time.Time
	// Reason explains the most recent failure, if any.
	Reason string

	identifier string
	status     Status
	now        func() time.Time
}

// NewAttempt creates an attempt in the Created state.
func NewAttempt(env Environment, email, password, nickname string) *Attempt {
	return newAttemptAt(env, email, password, nickname, time.Now)
}

func newAttemptAt(env Environment, email, password, nickname string, now func() time.Time) *Attempt {
	ts := now()
	return &Attempt{
		ID:          uuid.NewString(),
		Email:       email,
		Password:    password,
		Nickname:    nickname,
		Environment: env,
		CreatedAt:   ts,
		UpdatedAt:   ts,
		status:      StatusCreated,
		now:         now,
	}
}

// Status returns the current status.
func (a *Attempt) Status() Status { return a.status }

// Identifier returns the platform account id. It is non-empty only once the
// attempt is Completed.
func (a *Attempt) Identifier() string { return a.identifier }

// IsCompleted reports whether the attempt succeeded.
func (a *Attempt) IsCompleted() bool { return a.status.IsCompleted() }

// IsFailed reports whether the attempt ended in a failure state.
func (a *Attempt) IsFailed() bool { return a.status.IsFailed() }

// Update moves the attempt to status. Completed must go through Complete.
func (a *Attempt) Update(status Status) error {
	if status == StatusCompleted {
		return ErrIdentifierRequired
	}
	return a.transition(status)
}

// Fail moves the attempt to a failure status and records why.
func (a *Attempt) Fail(status Status, reason string) error {
	if !status.IsFailed() {
		return fmt.Errorf("%w: %s is not a failure status", ErrIllegalTransition, status)
	}
	if err := a.transition(status); err != nil {
		return err
	}
	a.Reason = reason
	return nil
}

// Complete records the identifier and marks the attempt Completed.
func (a *Attempt) Complete(identifier string) error {
	if identifier == "" {
		return ErrIdentifierRequired
	}
	if err := a.transition(StatusCompleted); err != nil {
		return err
	}
	a.identifier = identifier
	return nil
}

func (a *Attempt) transition(to Status) error {
	if !a.status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, a.status, to)
	}
	a.status = to
	a.UpdatedAt = a.clock()
	return nil
}

func (a *Attempt) clock() time.Time {
	if a.now == nil {
		return time.Now()
	}
	return a.now()
}

// Snapshot is the persisted form of an attempt.
type Snapshot struct {
	ID          string      `json:"-"`
	Email       string      `json:"email"`
	Password    string      `json:"password"`
	Nickname    string      `json:"nickname"`
	Identifier  *string     `json:"wid"`
	Status      Status      `json:"status"`
	CreatedAt   string      `json:"created_at"`
	UpdatedAt   string      `json:"updated_at"`
	Environment Environment `json:"environment"`
}

// Snapshot copies the attempt's current state.
func (a *Attempt) Snapshot() Snapshot {
	s := Snapshot{
		ID:          a.ID,
		Email:       a.Email,
		Password:    a.Password,
		Nickname:    a.Nickname,
		Status:      a.status,
		CreatedAt:   a.CreatedAt.Format(TimestampLayout),
		UpdatedAt:   a.UpdatedAt.Format(TimestampLayout),
		Environment: a.Environment,
	}
	if a.identifier != "" {
		id := a.identifier
		s.Identifier = &id
	}
	return s
}

// WID returns the identifier or "" when absent.
func (s Snapshot) WID() string {
	if s.Identifier == nil {
		return ""
	}
	return *s.Identifier
}
