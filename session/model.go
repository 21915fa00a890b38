package session

import (
	"context"
	"time"
)

// Record is the persisted credential record.
type Record struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	UserID       string
	Roles        []string
	// Identified is set when both the user id and role list are present.
	// A record without them is treated as anonymous at startup.
	Identified   bool
}

// Op is the kind of storage mutation.
type Op uint8

const (
	// OpSet marks a key write.
	OpSet Op = iota + 1
	// OpDelete marks a key removal.
	OpDelete
)

// String returns the wire name of op.
func (o Op) String() string {
	switch o {
	case OpSet:
		return "set"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Mutation describes one storage change. Key is the logical key name
// (for example [KeyAccessToken]), not the prefixed Redis key.
type Mutation struct {
	Origin string `json:"origin"`
	Key    string `json:"key"`
	Op     Op     `json:"op"`
	At     int64  `json:"at"`
}

// Publisher fans mutations out to peers.
type Publisher interface {
	Publish(ctx context.Context, m Mutation) error
}

// Logical key names.
const (
	KeyAccessToken     = "access_token"
	KeyRefreshToken    = "refresh_token"
	KeyTokenExpiration = "token_expiration"
	KeyUser            = "user"
	KeyRoles           = "roles"
	KeyAppVersion      = "app_version"
	KeyLogoutBroadcast = "logout_broadcast"
)
