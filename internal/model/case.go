package model

import "time"

// CaseStatus enumerates the lifecycle states of a rescue case.  A case
// starts as pending and moves along a fixed transition table until it
// reaches one of the terminal states.  The string values are stored
// verbatim in the rescue_cases.status column.
type CaseStatus string

const (
	StatusPending     CaseStatus = "pending"
	StatusClaimed     CaseStatus = "claimed"
	StatusEnRoute     CaseStatus = "en_route"
	StatusArrived     CaseStatus = "arrived"
	StatusResolved    CaseStatus = "resolved"
	StatusCancelled   CaseStatus = "cancelled"
	StatusUnreachable CaseStatus = "unreachable"
)

// transitions is the authoritative table of allowed status moves.
// pending→claimed is deliberately absent: that edge exists only through
// the atomic claim operation, never through a generic transition call.
var transitions = map[CaseStatus][]CaseStatus{
	StatusPending: {StatusCancelled},
	StatusClaimed: {StatusEnRoute, StatusCancelled, StatusUnreachable},
	StatusEnRoute: {StatusArrived, StatusUnreachable},
	StatusArrived: {StatusResolved},
}

// ParseCaseStatus converts a raw string into a CaseStatus.  Unknown
// values return false so handlers can reject them before touching the
// store.
func ParseCaseStatus(s string) (CaseStatus, bool) {
	switch CaseStatus(s) {
	case StatusPending, StatusClaimed, StatusEnRoute, StatusArrived,
		StatusResolved, StatusCancelled, StatusUnreachable:
		return CaseStatus(s), true
	}
	return "", false
}

// IsTerminal reports whether no further transition is defined from s.
func (s CaseStatus) IsTerminal() bool {
	return s == StatusResolved || s == StatusCancelled || s == StatusUnreachable
}

// CanTransitionTo reports whether the move s→next is listed in the
// transition table.  It is a pure table lookup; actor authorization is
// checked separately by the repository.
func (s CaseStatus) CanTransitionTo(next CaseStatus) bool {
	for _, n := range transitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// RescueCase represents a reported incident as stored in the
// `rescue_cases` table.  Cases are never deleted; only their media
// references and the underlying objects are purged after closure.
//
// Fields:
//  ID                – opaque UUID primary key.
//  ReporterID        – subject of the citizen who reported the case.
//  AssignedRescuerID – winning claimer; non-nil only after a claim.
//  Latitude/Longitude – incident location.
//  Description       – optional free text from the reporter.
//  WoundSeverity     – optional severity on a 1–10 scale.
//  Diagnosis         – optional structured AI diagnosis payload (JSON).
//  PhotoObjectKey    – object-store key of the original photo.
//  CropObjectKey     – object-store key of the cropped wound image.
//  Status            – current lifecycle state.
//  IsVisible         – row visibility flag for feed queries.
//  ClosedAt          – set when the case enters any terminal state.
type RescueCase struct {
	ID                string     // rescue_cases.id
	ReporterID        string     // rescue_cases.reporter_id
	AssignedRescuerID *string    // rescue_cases.assigned_rescuer_id (nullable)
	Latitude          float64    // rescue_cases.latitude
	Longitude         float64    // rescue_cases.longitude
	Description       *string    // rescue_cases.description (nullable)
	WoundSeverity     *int       // rescue_cases.wound_severity (nullable, 1-10)
	Diagnosis         *string    // rescue_cases.diagnosis (nullable JSON)
	PhotoObjectKey    *string    // rescue_cases.photo_object_key (nullable)
	CropObjectKey     *string    // rescue_cases.crop_object_key (nullable)
	Status            CaseStatus // rescue_cases.status
	IsVisible         bool       // rescue_cases.is_visible
	ClosedAt          *time.Time // rescue_cases.closed_at (nullable)
	CreatedAt         time.Time  // rescue_cases.created_at
	UpdatedAt         time.Time  // rescue_cases.updated_at
}

// ActorMayTransition reports whether the actor may move this case at
// all: its reporter, its assigned rescuer, or an admin.  Admin widens
// who may act, never which moves exist; table membership is a separate
// CanTransitionTo check.
func (c *RescueCase) ActorMayTransition(actorID, role string) bool {
	if actorID == c.ReporterID {
		return true
	}
	if c.AssignedRescuerID != nil && actorID == *c.AssignedRescuerID {
		return true
	}
	return role == RoleAdmin
}

// ValidCoordinates reports whether lat/lng form a usable WGS84 point.
func ValidCoordinates(lat, lng float64) bool {
	if lat != lat || lng != lng { // NaN
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// ValidSeverity reports whether the wound severity is on the 1–10 scale.
func ValidSeverity(s int) bool { return s >= 1 && s <= 10 }
