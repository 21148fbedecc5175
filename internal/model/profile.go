package model

import "time"

// Role names stored in user_profiles.role and carried in the JWT "role"
// claim.  Rescuer roles (volunteer, ngo, vet) are the fan-out audience
// and the only roles allowed to claim a case.
const (
	RoleCitizen   = "citizen"
	RoleVolunteer = "volunteer"
	RoleNGO       = "ngo"
	RoleVet       = "vet"
	RoleAdmin     = "admin"
)

// RescuerRoles lists the roles targeted by new-case fan-out.
var RescuerRoles = []string{RoleVolunteer, RoleNGO, RoleVet}

// DefaultAlertRadiusM is assigned to freshly bootstrapped profiles.
const DefaultAlertRadiusM = 5000

// allowedRadii is the fixed set of supported alert radii in meters.
var allowedRadii = [...]int{1000, 2000, 5000, 10000, 20000, 50000}

// ValidAlertRadius reports whether r is one of the supported radii.
func ValidAlertRadius(r int) bool {
	for _, v := range allowedRadii {
		if v == r {
			return true
		}
	}
	return false
}

// UserProfile represents an actor as stored in the `user_profiles`
// table.  Profiles are bootstrapped on first authenticated contact and
// keyed by the opaque subject taken from the verified bearer token.
//
// Fields:
//  ID            – opaque actor identifier (JWT subject).
//  Role          – one of the role constants above.
//  Verified      – whether the actor passed identity verification.
//  TrustScore    – accumulated reputation used by moderation tooling.
//  HomeLatitude/HomeLongitude – alert-area center; nil until onboarded.
//  AlertRadiusM  – one of allowedRadii; recipients are targeted within
//                  their own radius, not a system-wide constant.
//  LastLatitude/LastLongitude – last reported device location.
//  PushToken     – FCM registration token; cleared automatically when
//                  delivery reports it unregistered.
type UserProfile struct {
	ID            string     // user_profiles.id
	Role          string     // user_profiles.role
	Verified      bool       // user_profiles.verified
	TrustScore    int        // user_profiles.trust_score
	HomeLatitude  *float64   // user_profiles.home_latitude (nullable)
	HomeLongitude *float64   // user_profiles.home_longitude (nullable)
	AlertRadiusM  int        // user_profiles.alert_radius_m
	LastLatitude  *float64   // user_profiles.last_latitude (nullable)
	LastLongitude *float64   // user_profiles.last_longitude (nullable)
	PushToken     *string    // user_profiles.push_token (nullable)
	CreatedAt     time.Time  // user_profiles.created_at
	UpdatedAt     time.Time  // user_profiles.updated_at
}

// CanClaim reports whether the profile's role is allowed to claim cases.
func (p *UserProfile) CanClaim() bool {
	switch p.Role {
	case RoleVolunteer, RoleNGO, RoleVet:
		return true
	}
	return false
}
