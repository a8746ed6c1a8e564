package session

import "fmt"

// InvalidStateTransitionError represents a disallowed session transition
type InvalidStateTransitionError struct {
	FromStatus Status
	ToStatus   Status
	SessionID  string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s for session %s", e.FromStatus, e.ToStatus, e.SessionID)
}

// InvalidOperationError represents an operation attempted in a state that
// does not allow it
type InvalidOperationError struct {
	Status    Status
	Operation string
	SessionID string
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("invalid operation %s for status %s in session %s", e.Operation, e.Status, e.SessionID)
}

// ConcurrentTransitionError is returned when a compare-and-set transition
// finds the session in a different state than expected, meaning another
// caller moved it first.
type ConcurrentTransitionError struct {
	SessionID string
	Expected  Status
	Actual    Status
}

func (e *ConcurrentTransitionError) Error() string {
	return fmt.Sprintf("session %s is %s, expected %s; another caller transitioned it", e.SessionID, e.Actual, e.Expected)
}

// AllowedTransitions defines the forward state machine for import sessions.
// posting is the transient state held while the promoter writes production
// chunks; a failed promotion returns to staged for retry. cancelled is
// reachable from every state before production writes begin.
func AllowedTransitions() map[Status][]Status {
	return map[Status][]Status{
		StatusDraft:     {StatusMapping, StatusCancelled},
		StatusMapping:   {StatusReviewing, StatusCancelled},
		StatusReviewing: {StatusMapping, StatusStaged, StatusCancelled},
		StatusStaged:    {StatusReviewing, StatusPosting, StatusCancelled},
		StatusPosting:   {StatusPosted, StatusStaged},
		StatusPosted:    {StatusExported},
		StatusExported:  {StatusArchived},
		StatusArchived:  {},
		StatusCancelled: {},
	}
}

// IsValidTransition checks whether moving from one status to another is
// allowed by the state machine.
func IsValidTransition(from, to Status) bool {
	for _, allowed := range AllowedTransitions()[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func IsTerminal(s Status) bool {
	return len(AllowedTransitions()[s]) == 0
}

// CanCancel reports whether the session may still be cancelled. Once
// production writes have started the only path forward is retry.
func CanCancel(s Status) bool {
	return IsValidTransition(s, StatusCancelled)
}

// ValidateTransition returns a typed error for a disallowed transition.
func ValidateTransition(sessionID string, from, to Status) error {
	if !IsValidTransition(from, to) {
		return &InvalidStateTransitionError{FromStatus: from, ToStatus: to, SessionID: sessionID}
	}
	return nil
}

// StatusDescription provides human-readable descriptions of session states
func StatusDescription(s Status) string {
	switch s {
	case StatusDraft:
		return "Session created, transactions imported but not yet mapped"
	case StatusMapping:
		return "Mapping rules are being applied to transactions"
	case StatusReviewing:
		return "Mapping complete, awaiting review"
	case StatusStaged:
		return "Staging entries built and balance-verified"
	case StatusPosting:
		return "Production promotion in progress"
	case StatusPosted:
		return "Entries posted to the production ledger"
	case StatusExported:
		return "Posted entries exported"
	case StatusArchived:
		return "Session archived"
	case StatusCancelled:
		return "Session cancelled before posting"
	default:
		return "Unknown state"
	}
}
