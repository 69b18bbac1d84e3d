// Package auth maps API token scopes to the permissions operations require.
package auth

import (
	"fmt"
	"strings"
)

const (
	PermChecklistsRead  = "checklists.read"
	PermChecklistsWrite = "checklists.write"
	PermServersWrite    = "servers.write"
	PermSessionsWrite   = "sessions.write"
	PermEventsRead      = "events.read"
)

// scopes expand to permissions. A token without scopes is read-only.
var scopes = map[string][]string{
	"read":     {PermChecklistsRead, PermEventsRead},
	"validate": {PermChecklistsRead, PermSessionsWrite},
	"admin":    {PermChecklistsRead, PermChecklistsWrite, PermServersWrite, PermSessionsWrite, PermEventsRead},
}

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	ActorID     string
	Permissions map[string]bool
}

// NewPrincipal resolves a space separated scope claim. Unknown scopes are
// ignored.
func NewPrincipal(actorID, scope string) Principal {
	p := Principal{ActorID: actorID, Permissions: map[string]bool{}}
	fields := strings.Fields(scope)
	if len(fields) == 0 {
		fields = []string{"read"}
	}
	for _, s := range fields {
		for _, perm := range scopes[s] {
			p.Permissions[perm] = true
		}
	}
	return p
}

// Require returns a ForbiddenError when p lacks perm.
func (p Principal) Require(perm string) error {
	if !p.Permissions[perm] {
		return ForbiddenError{Permission: perm}
	}
	return nil
}
