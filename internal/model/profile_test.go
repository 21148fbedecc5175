package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidAlertRadius(t *testing.T) {
	for _, r := range []int{1000, 2000, 5000, 10000, 20000, 50000} {
		assert.True(t, ValidAlertRadius(r), "%d", r)
	}
	for _, r := range []int{0, -1000, 500, 3000, 100000} {
		assert.False(t, ValidAlertRadius(r), "%d", r)
	}
}

func TestCanClaim(t *testing.T) {
	for role, want := range map[string]bool{
		RoleCitizen:   false,
		RoleVolunteer: true,
		RoleNGO:       true,
		RoleVet:       true,
		RoleAdmin:     false,
		"":            false,
	} {
		p := UserProfile{ID: "u1", Role: role}
		assert.Equal(t, want, p.CanClaim(), role)
	}
}
