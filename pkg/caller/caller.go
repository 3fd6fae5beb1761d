// Package caller resolves the identity a request acts as. Identities are
// account UUIDs carried in the X-Account-ID header; they are not authenticated.
package caller

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"assetledger/pkg/registry"
)

const Header = "X-Account-ID"

var (
	ErrMissingIdentity = errors.New("missing " + Header + " header")
	ErrInvalidIdentity = errors.New("account id must be a UUID")
)

// ParseIdentity normalizes raw into the canonical lowercase UUID form.
func ParseIdentity(raw string) (registry.Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrMissingIdentity
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", ErrInvalidIdentity
	}
	return registry.Identity(id.String()), nil
}

func FromContext(c *gin.Context) (registry.Identity, error) {
	return ParseIdentity(c.GetHeader(Header))
}
