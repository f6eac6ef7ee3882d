package orchestrator

import (
	"fmt"

	"github.com/lox/stationgroups/internal/models"
)

// MembershipConflictError is returned when a station is added to a group
// while it still belongs to another one.
type MembershipConflictError struct {
	StationID string
	GroupID   string
}

func (e *MembershipConflictError) Error() string {
	return fmt.Sprintf("station %s already belongs to group %s", e.StationID, e.GroupID)
}

func (e *MembershipConflictError) Unwrap() error {
	return models.ErrConflict
}
