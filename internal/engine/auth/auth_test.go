package auth_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"servicehub/internal/engine/auth"
)

type admins []string

func (a admins) IsCatalogAdmin(id string) bool {
	for _, v := range a {
		if v == id {
			return true
		}
	}
	return false
}

func TestRequireSelf(t *testing.T) {
	assert.NoError(t, auth.RequireSelf("c-1", "c-1"))
	assert.ErrorIs(t, auth.RequireSelf("", "c-1"), auth.ErrActorRequired)

	var fe auth.ForbiddenError
	assert.True(t, errors.As(auth.RequireSelf("c-2", "c-1"), &fe))
	assert.Equal(t, auth.PermProfileWrite, fe.Permission)
}

func TestRequireCatalogAdmin(t *testing.T) {
	assert.NoError(t, auth.RequireCatalogAdmin(admins{"admin"}, "admin"))
	assert.Error(t, auth.RequireCatalogAdmin(admins{"admin"}, "c-1"))
	assert.Error(t, auth.RequireCatalogAdmin(nil, "admin"))
}

func TestRequireParty(t *testing.T) {
	a := admins{"admin"}
	assert.NoError(t, auth.RequireParty(a, "p-1", "c-1", "p-1"))
	assert.NoError(t, auth.RequireParty(a, "admin", "c-1", "p-1"))
	assert.EqualError(t, auth.RequireParty(a, "x", "c-1", "p-1"), "permission request.read required")
}
