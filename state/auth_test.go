package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthContextCanAccess(t *testing.T) {
	owned := map[string]any{MetadataOwnerKey: "alice"}
	internal := map[string]any{"project": "demo"}

	t.Run("NilContextSeesEverything", func(t *testing.T) {
		var auth *AuthContext
		assert.True(t, auth.CanAccess(owned))
		assert.True(t, auth.CanAccess(internal))
		assert.True(t, auth.CanAccess(nil))
	})

	t.Run("OwnerMatches", func(t *testing.T) {
		alice := &AuthContext{User: &AuthUser{Identity: "alice"}}
		assert.True(t, alice.CanAccess(owned))
		assert.False(t, alice.CanAccess(map[string]any{MetadataOwnerKey: "bob"}))
	})

	t.Run("NoOwnerMeansInternalOnly", func(t *testing.T) {
		alice := &AuthContext{User: &AuthUser{Identity: "alice"}}
		assert.False(t, alice.CanAccess(internal))
		assert.False(t, alice.CanAccess(nil))
	})

	t.Run("NonStringOwnerNeverMatches", func(t *testing.T) {
		alice := &AuthContext{User: &AuthUser{Identity: "alice"}}
		assert.False(t, alice.CanAccess(map[string]any{MetadataOwnerKey: 42}))
	})

	t.Run("ContextWithoutIdentitySeesNothing", func(t *testing.T) {
		empty := &AuthContext{}
		assert.False(t, empty.CanAccess(owned))
		assert.False(t, empty.CanAccess(internal))
	})
}

func TestAuthContextStampOwner(t *testing.T) {
	t.Run("NilContextPassesThrough", func(t *testing.T) {
		var auth *AuthContext
		md, err := auth.stampOwner(map[string]any{"k": "v"})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"k": "v"}, md)
	})

	t.Run("FillsOwner", func(t *testing.T) {
		alice := &AuthContext{User: &AuthUser{Identity: "alice"}}
		md, err := alice.stampOwner(nil)
		require.NoError(t, err)
		assert.Equal(t, "alice", md[MetadataOwnerKey])
	})

	t.Run("MatchingOwnerAccepted", func(t *testing.T) {
		alice := &AuthContext{User: &AuthUser{Identity: "alice"}}
		md, err := alice.stampOwner(map[string]any{MetadataOwnerKey: "alice"})
		require.NoError(t, err)
		assert.Equal(t, "alice", md[MetadataOwnerKey])
	})

	t.Run("ForeignOwnerRejected", func(t *testing.T) {
		alice := &AuthContext{User: &AuthUser{Identity: "alice"}}
		_, err := alice.stampOwner(map[string]any{MetadataOwnerKey: "bob"})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("ContextWithoutIdentityRejected", func(t *testing.T) {
		empty := &AuthContext{}
		_, err := empty.stampOwner(nil)
		assert.ErrorIs(t, err, ErrValidation)
	})
}
