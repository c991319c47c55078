package session

import "github.com/google/uuid"

// Group is a joined group. It refers back to its session by ID only and
// carries no transport state of its own; identity is pointer identity.
type Group struct {
	session uuid.UUID
	name    string
}

func (g *Group) Name() string {
	return g.name
}

// SessionID names the session that created the handle.
func (g *Group) SessionID() uuid.UUID {
	return g.session
}

func (g *Group) String() string {
	return g.name
}
