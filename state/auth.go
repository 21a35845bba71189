package state

import "fmt"

// MetadataOwnerKey is the metadata key that scopes an entity to a user
// identity.
const MetadataOwnerKey = "owner"

// AuthUser identifies the caller of a scoped operation.
type AuthUser struct {
	Identity        string
	DisplayName     string
	Permissions     []string
	IsAuthenticated bool
}

// AuthContext scopes reads and writes to entities the caller owns. A nil
// context means a trusted internal caller with unrestricted access; that
// is the only way to bypass ownership checks. A non-nil context restricts
// visibility to entities whose metadata owner equals the user identity.
type AuthContext struct {
	User   *AuthUser
	Scopes []string
}

// CanAccess reports whether the context may see an entity with the given
// metadata. Entities without an owner key are internal-only: visible to
// the nil context and to nobody else.
func (c *AuthContext) CanAccess(metadata map[string]any) bool {
	if c == nil {
		return true
	}
	if c.User == nil || c.User.Identity == "" {
		return false
	}
	owner, ok := metadata[MetadataOwnerKey].(string)
	return ok && owner == c.User.Identity
}

// stampOwner makes metadata consistent with the caller: a scoped caller
// that omits the owner key gets it filled in, and may not claim another
// identity. The nil context writes metadata as given.
func (c *AuthContext) stampOwner(metadata map[string]any) (map[string]any, error) {
	if c == nil {
		return metadata, nil
	}
	if c.User == nil || c.User.Identity == "" {
		return nil, fmt.Errorf("%w: authorization context has no user identity", ErrValidation)
	}
	if metadata == nil {
		metadata = make(map[string]any, 1)
	}
	owner, ok := metadata[MetadataOwnerKey]
	if !ok {
		metadata[MetadataOwnerKey] = c.User.Identity
		return metadata, nil
	}
	if s, isStr := owner.(string); !isStr || s != c.User.Identity {
		return nil, fmt.Errorf("%w: metadata owner does not match caller identity", ErrValidation)
	}
	return metadata, nil
}
