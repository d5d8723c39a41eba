package account

import (
	"fmt"
)

// Status is the position of an attempt in the creation pipeline. The set of
// values is closed: every predicate below switches over all of them.
type Status uint8

const (
	StatusCreated Status = iota
	StatusEmailStepFailed
	StatusPasswordStepFailed
	StatusNicknameStepFailed
	StatusTermsStepFailed
	StatusEmailVerificationPending
	StatusEmailVerificationFailed
	StatusEmailVerified
	StatusIdentifierExtractionFailed
	StatusCompleted
	StatusCreationFailed
)

// AllStatuses lists every status in pipeline order.
var AllStatuses = []Status{
	StatusCreated,
	StatusEmailStepFailed,
	StatusPasswordStepFailed,
	StatusNicknameStepFailed,
	StatusTermsStepFailed,
	StatusEmailVerificationPending,
	StatusEmailVerificationFailed,
	StatusEmailVerified,
	StatusIdentifierExtractionFailed,
	StatusCompleted,
	StatusCreationFailed,
}

// String returns the wire name used in result files.
func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusEmailStepFailed:
		return "email_step_failed"
	case StatusPasswordStepFailed:
		return "password_step_failed"
	case StatusNicknameStepFailed:
		return "nickname_step_failed"
	case StatusTermsStepFailed:
		return "terms_step_failed"
	case StatusEmailVerificationPending:
		return "email_verification_pending"
	case StatusEmailVerificationFailed:
		return "email_verification_failed"
	case StatusEmailVerified:
		return "email_verified"
	case StatusIdentifierExtractionFailed:
		return "wid_extraction_failed"
	case StatusCompleted:
		return "completed"
	case StatusCreationFailed:
		return "creation_failed"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// ParseStatus is the inverse of String.
func ParseStatus(name string) (Status, error) {
	for _, s := range AllStatuses {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown account status %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("cannot marshal invalid status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s Status) valid() bool {
	return s <= StatusCreationFailed
}

// IsCompleted reports whether s is the single success state.
func (s Status) IsCompleted() bool {
	return s == StatusCompleted
}

// IsFailed reports whether s is a terminal failure.
func (s Status) IsFailed() bool {
	switch s {
	case StatusEmailStepFailed,
		StatusPasswordStepFailed,
		StatusNicknameStepFailed,
		StatusTermsStepFailed,
		StatusEmailVerificationFailed,
		StatusIdentifierExtractionFailed,
		StatusCreationFailed:
		return true
	case StatusCreated,
		StatusEmailVerificationPending,
		StatusEmailVerified,
		StatusCompleted:
		return false
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s.IsCompleted() || s.IsFailed()
}

// IsPending reports whether the attempt stopped in a non-terminal state.
func (s Status) IsPending() bool {
	return s.valid() && !s.IsTerminal()
}

// next lists the legal successors of every status.
var next = map[Status][]Status{
	StatusCreated: {
		StatusEmailStepFailed,
		StatusPasswordStepFailed,
		StatusNicknameStepFailed,
		StatusTermsStepFailed,
		StatusEmailVerificationPending,
		StatusCreationFailed,
	},
	StatusEmailVerificationPending: {
		StatusEmailVerificationFailed,
		StatusEmailVerified,
		StatusCreationFailed,
	},
	StatusEmailVerified: {
		StatusIdentifierExtractionFailed,
		StatusCompleted,
		StatusCreationFailed,
	},
}

// CanTransition reports whether moving from s to to is a legal forward step.
func (s Status) CanTransition(to Status) bool {
	for _, candidate := range next[s] {
		if candidate == to {
			return true
		}
	}
	return false
}
