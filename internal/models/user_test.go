package models

import (
	"encoding/json"
	"testing"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserInfoDecodesProfileByRole(t *testing.T) {
	identity := &Identity{ID: "f1", Email: "sari@campus.test", Role: RoleFaculty, Active: true}
	raw, err := EncodeProfile(FacultyProfile{EmployeeCode: "F-01", DepartmentRef: "MATH"})
	require.NoError(t, err)
	identity.ProfileData = raw

	body, err := json.Marshal(identity.Public())
	require.NoError(t, err)

	var info UserInfo
	require.NoError(t, json.Unmarshal(body, &info))
	assert.Equal(t, "sari@campus.test", info.Email)
	assert.Equal(t, FacultyProfile{EmployeeCode: "F-01", DepartmentRef: "MATH"}, info.Profile)
}

func TestMissingProfileIsStoredAsJSONNull(t *testing.T) {
	raw, err := EncodeProfile(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))

	for _, stored := range []types.JSONText{raw, types.JSONText("{}"), nil} {
		profile, err := DecodeProfile(RoleSuperAdmin, stored)
		require.NoError(t, err)
		assert.Nil(t, profile)
	}

	var info UserInfo
	require.NoError(t, json.Unmarshal([]byte(`{"id":"s1","role":"superAdmin","active":true}`), &info))
	assert.Nil(t, info.Profile)
	assert.Equal(t, RoleSuperAdmin, info.Role)
}
