package sharekit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrivilegeOrdering(t *testing.T) {
	assert.True(t, PrivilegeOwner < PrivilegeChange)
	assert.True(t, PrivilegeChange < PrivilegeView)
	assert.True(t, PrivilegeView < PrivilegeNone)
}

func TestMinPrivilege(t *testing.T) {
	tests := []struct {
		name string
		a, b PrivilegeCode
		want PrivilegeCode
	}{
		{"owner beats change", PrivilegeOwner, PrivilegeChange, PrivilegeOwner},
		{"change beats view", PrivilegeView, PrivilegeChange, PrivilegeChange},
		{"view beats none", PrivilegeNone, PrivilegeView, PrivilegeView},
		{"equal codes", PrivilegeChange, PrivilegeChange, PrivilegeChange},
		{"none with none", PrivilegeNone, PrivilegeNone, PrivilegeNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MinPrivilege(tt.a, tt.b))
			assert.Equal(t, tt.want, MinPrivilege(tt.b, tt.a), "MinPrivilege must be symmetric")
		})
	}
}

func TestGrants(t *testing.T) {
	tests := []struct {
		name string
		held PrivilegeCode
		need PrivilegeCode
		want bool
	}{
		{"owner grants view", PrivilegeOwner, PrivilegeView, true},
		{"owner grants change", PrivilegeOwner, PrivilegeChange, true},
		{"owner grants owner", PrivilegeOwner, PrivilegeOwner, true},
		{"change grants view", PrivilegeChange, PrivilegeView, true},
		{"change denies owner", PrivilegeChange, PrivilegeOwner, false},
		{"view denies change", PrivilegeView, PrivilegeChange, false},
		{"view grants view", PrivilegeView, PrivilegeView, true},
		{"none denies view", PrivilegeNone, PrivilegeView, false},
		{"none denies none", PrivilegeNone, PrivilegeNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.held.Grants(tt.need))
		})
	}
}

func TestPrivilegeValidAndShareable(t *testing.T) {
	assert.True(t, PrivilegeOwner.Valid())
	assert.True(t, PrivilegeNone.Valid())
	assert.False(t, PrivilegeCode(0).Valid())
	assert.False(t, PrivilegeCode(5).Valid())

	assert.True(t, PrivilegeOwner.Shareable())
	assert.True(t, PrivilegeChange.Shareable())
	assert.True(t, PrivilegeView.Shareable())
	assert.False(t, PrivilegeNone.Shareable())
	assert.False(t, PrivilegeCode(0).Shareable())
}

func TestPrivilegeString(t *testing.T) {
	assert.Equal(t, "owner", PrivilegeOwner.String())
	assert.Equal(t, "change", PrivilegeChange.String())
	assert.Equal(t, "view", PrivilegeView.String())
	assert.Equal(t, "none", PrivilegeNone.String())
	assert.Equal(t, "privilege(9)", PrivilegeCode(9).String())
}

func TestParsePrivilege(t *testing.T) {
	for _, p := range []PrivilegeCode{PrivilegeOwner, PrivilegeChange, PrivilegeView, PrivilegeNone} {
		got, err := ParsePrivilege(p.String())
		assert.NoError(t, err)
		assert.Equal(t, p, got)
	}

	_, err := ParsePrivilege("admin")
	assert.ErrorIs(t, err, ErrInvalidPrivilege)
}
