package agentconfig

import "fmt"

type Phase string

const (
	PhaseValidate      Phase = "validate"
	PhaseExternalWrite Phase = "external_write"
	PhaseLocalWrite    Phase = "local_write"
	PhaseVerify        Phase = "verify"
)

// SyncError says where a sync stopped and which systems it had already changed.
type SyncError struct {
	Phase           Phase
	ExternalMutated bool
	LocalMutated    bool
	Err             error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync failed in %s (external_mutated=%t local_mutated=%t): %v",
		e.Phase, e.ExternalMutated, e.LocalMutated, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// RetrySafe is true when nothing was changed anywhere, so the same request can
// simply be sent again.
func (e *SyncError) RetrySafe() bool {
	return !e.ExternalMutated && !e.LocalMutated
}
