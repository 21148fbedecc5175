package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCaseStatus(t *testing.T) {
	for _, raw := range []string{"pending", "claimed", "en_route", "arrived", "resolved", "cancelled", "unreachable"} {
		s, ok := ParseCaseStatus(raw)
		require.True(t, ok, raw)
		assert.Equal(t, raw, string(s))
	}
	for _, raw := range []string{"", "PENDING", "done", "en-route", "claimed "} {
		_, ok := ParseCaseStatus(raw)
		assert.False(t, ok, raw)
	}
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, StatusResolved.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusUnreachable.IsTerminal())

	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusClaimed.IsTerminal())
	assert.False(t, StatusEnRoute.IsTerminal())
	assert.False(t, StatusArrived.IsTerminal())
}

// TestTransitionTableClosure walks every (current, next) pair and checks
// it against the explicitly allowed set.  Everything not listed must be
// rejected, including self-transitions and anything out of a terminal
// state.  pending→claimed is absent on purpose: that edge only exists
// through the atomic claim.
func TestTransitionTableClosure(t *testing.T) {
	all := []CaseStatus{
		StatusPending, StatusClaimed, StatusEnRoute, StatusArrived,
		StatusResolved, StatusCancelled, StatusUnreachable,
	}
	allowed := map[[2]CaseStatus]bool{
		{StatusPending, StatusCancelled}:   true,
		{StatusClaimed, StatusEnRoute}:     true,
		{StatusClaimed, StatusCancelled}:   true,
		{StatusClaimed, StatusUnreachable}: true,
		{StatusEnRoute, StatusArrived}:     true,
		{StatusEnRoute, StatusUnreachable}: true,
		{StatusArrived, StatusResolved}:    true,
	}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]CaseStatus{from, to}]
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestActorMayTransition(t *testing.T) {
	assignee := "rescuer-1"
	claimed := &RescueCase{
		ID:                "c1",
		ReporterID:        "reporter-1",
		AssignedRescuerID: &assignee,
		Status:            StatusClaimed,
	}

	assert.True(t, claimed.ActorMayTransition("reporter-1", RoleCitizen))
	assert.True(t, claimed.ActorMayTransition("rescuer-1", RoleVolunteer))
	assert.True(t, claimed.ActorMayTransition("someone-else", RoleAdmin))

	// Neither rescuer role nor verification substitutes for being the
	// reporter, the assignee or an admin.
	assert.False(t, claimed.ActorMayTransition("someone-else", RoleVolunteer))
	assert.False(t, claimed.ActorMayTransition("someone-else", RoleVet))
	assert.False(t, claimed.ActorMayTransition("someone-else", RoleCitizen))

	unassigned := &RescueCase{ID: "c2", ReporterID: "reporter-1", Status: StatusPending}
	assert.True(t, unassigned.ActorMayTransition("reporter-1", RoleCitizen))
	assert.False(t, unassigned.ActorMayTransition("rescuer-1", RoleVolunteer))
}

// Authorization and table membership gate independently: an outsider is
// refused even when the requested move is legal for the current status,
// and an admin gains actors, not edges.
func TestAuthorizationDoesNotBypassTransitionTable(t *testing.T) {
	assignee := "rescuer-1"
	claimed := &RescueCase{
		ID:                "c1",
		ReporterID:        "reporter-1",
		AssignedRescuerID: &assignee,
		Status:            StatusClaimed,
	}

	// claimed -> en_route is listed, but an unrelated actor may not take it.
	assert.True(t, claimed.Status.CanTransitionTo(StatusEnRoute))
	assert.False(t, claimed.ActorMayTransition("outsider", RoleNGO))

	// Admin may act on the case, yet claimed -> resolved stays off-table.
	assert.True(t, claimed.ActorMayTransition("admin-1", RoleAdmin))
	assert.False(t, claimed.Status.CanTransitionTo(StatusResolved))
}

func TestValidCoordinates(t *testing.T) {
	assert.True(t, ValidCoordinates(0, 0))
	assert.True(t, ValidCoordinates(-90, 180))
	assert.True(t, ValidCoordinates(90, -180))
	assert.True(t, ValidCoordinates(28.6139, 77.2090))

	assert.False(t, ValidCoordinates(90.0001, 0))
	assert.False(t, ValidCoordinates(0, -180.5))
	assert.False(t, ValidCoordinates(math.NaN(), 0))
	assert.False(t, ValidCoordinates(0, math.NaN()))
}

func TestValidSeverity(t *testing.T) {
	assert.False(t, ValidSeverity(0))
	assert.True(t, ValidSeverity(1))
	assert.True(t, ValidSeverity(10))
	assert.False(t, ValidSeverity(11))
	assert.False(t, ValidSeverity(-3))
}
