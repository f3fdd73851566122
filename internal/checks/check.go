package checks

import (
	"context"

	"github.com/haleyrc/workdriver/models"
)

// Check is implemented by each source of issues. Checks are stateless:
// every Run fetches fresh data, and all cross-cycle memory lives in the
// state store. A failed Run never affects other checks in the same cycle.
type Check interface {
	Name() string
	Run(ctx context.Context) ([]models.Issue, error)
}

// Failure records one check's error for a single cycle. It is surfaced in
// the dashboard snapshot, never fatal to the coordinator.
type Failure struct {
	Check string `json:"check"`
	Error string `json:"error"`
}
