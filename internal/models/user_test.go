package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleValid(t *testing.T) {
	for _, role := range []Role{RoleCustomer, RoleFarmer, RoleStaff, RoleAdmin} {
		assert.True(t, role.Valid(), role)
	}
	assert.False(t, Role("").Valid())
	assert.False(t, Role("Admin").Valid())
}

func TestRoleOneOf(t *testing.T) {
	assert.True(t, RoleStaff.OneOf(RoleStaff, RoleAdmin))
	assert.False(t, RoleFarmer.OneOf(RoleStaff, RoleAdmin))
	assert.False(t, RoleAdmin.OneOf())
}
