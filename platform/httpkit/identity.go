// Package httpkit carries the HTTP helpers shared by the module routers,
// including the identity of the marketplace user behind a request.
package httpkit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Identity describes the caller the JWT middleware resolved for a request.
// Handlers read user ID and roles through it instead of digging keys out of
// the Gin context themselves.
type Identity interface {
	// UserID is the marketplace user's ID.
	UserID() uuid.UUID
	// Roles lists the roles granted to the user (buyer, agent, admin).
	Roles() []string
	// HasRole reports whether the user holds the given role.
	HasRole(role string) bool
	// IsAuthenticated reports whether a valid token backed the request.
	IsAuthenticated() bool
}

type identity struct {
	userID        uuid.UUID
	roles         []string
	authenticated bool
}

func (i *identity) UserID() uuid.UUID {
	return i.userID
}

func (i *identity) Roles() []string {
	return i.roles
}

func (i *identity) HasRole(role string) bool {
	for _, r := range i.roles {
		if r == role {
			return true
		}
	}
	return false
}

func (i *identity) IsAuthenticated() bool {
	return i.authenticated
}

// GetIdentity reads the identity the auth middleware stored on the Gin
// context. Requests that carried no valid token yield an unauthenticated
// identity rather than an error.
func GetIdentity(c *gin.Context) Identity {
	userID, userOK := c.Get(ContextUserIDKey)
	roles, rolesOK := c.Get(ContextRolesKey)

	if !userOK {
		return &identity{authenticated: false}
	}

	uid, ok := userID.(uuid.UUID)
	if !ok {
		return &identity{authenticated: false}
	}

	var roleList []string
	if rolesOK {
		roleList, _ = roles.([]string)
	}

	return &identity{
		userID:        uid,
		roles:         roleList,
		authenticated: true,
	}
}

// MustGetIdentity is GetIdentity for routes that require a signed-in user:
// it aborts the request with 401 and returns nil when no identity is present.
func MustGetIdentity(c *gin.Context) Identity {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil
	}
	return id
}
