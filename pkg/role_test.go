package pkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRole(t *testing.T) {
	tests := []struct {
		raw  string
		want Role
	}{
		{"TENANT", RoleTenant},
		{"tenant", RoleTenant},
		{"  Owner ", RoleOwner},
		{"MAINTENANCE", RoleProvider},
		{"service_provider", RoleProvider},
		{"RUNNER", RoleRunner},
		{"", RoleGuest},
		{"   ", RoleGuest},
		{"Martian", Role("martian")},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeRole(tt.raw))
		})
	}
}

func TestRoleKnown(t *testing.T) {
	assert.True(t, RoleTenant.Known())
	assert.True(t, RoleGuest.Known())
	assert.False(t, Role("martian").Known())
	assert.False(t, Role("TENANT").Known(), "only normalized roles are known")
}

func TestRoleKey(t *testing.T) {
	assert.Equal(t, "BROKER", RoleBroker.Key())
}

func TestIntentResultEntity(t *testing.T) {
	var empty IntentResult
	assert.Equal(t, "", empty.Entity(EntityAmount))

	r := IntentResult{Entities: map[string]string{EntityLocation: "Providencia"}}
	assert.Equal(t, "Providencia", r.Entity(EntityLocation))
}
