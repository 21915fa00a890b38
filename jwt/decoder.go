package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenMalformed is returned when a token cannot be decoded.
var ErrTokenMalformed = errors.New("token malformed")

// DefaultExpiryBuffer is the safety margin applied by [Decoder.ExpiredLocally].
const DefaultExpiryBuffer = 30 * time.Second

// Config controls which claims the decoder reads.
type Config struct {
	// RoleClaimKeys are tried in order; the first present key wins.
	RoleClaimKeys []string
	// SubjectClaimKeys are tried in order; the first non-empty string wins.
	SubjectClaimKeys []string
	// ExpiryBuffer treats a token as expired this long before its exp claim.
	ExpiryBuffer time.Duration
}

// Claims is the decoded, normalized view of an access token.
type Claims struct {
	Subject   string
	ExpiresAt *time.Time
	Roles     []string
}

// Decoder reads claims from unverified tokens. It is immutable and safe for
// concurrent use.
type Decoder struct {
	cfg    Config
	parser *jwt.Parser
}

// NewDecoder validates cfg and returns a [Decoder].
func NewDecoder(cfg Config) (*Decoder, error) {
	if len(cfg.RoleClaimKeys) == 0 {
		cfg.RoleClaimKeys = []string{"role", "roles"}
	}
	if len(cfg.SubjectClaimKeys) == 0 {
		cfg.SubjectClaimKeys = []string{"sub"}
	}
	if cfg.ExpiryBuffer == 0 {
		cfg.ExpiryBuffer = DefaultExpiryBuffer
	}
	if cfg.ExpiryBuffer < 0 {
		return nil, errors.New("invalid expiry buffer")
	}
	for _, k := range cfg.RoleClaimKeys {
		if strings.TrimSpace(k) == "" {
			return nil, errors.New("role claim key empty")
		}
	}

	return &Decoder{
		cfg:    cfg,
		parser: jwt.NewParser(jwt.WithoutClaimsValidation()),
	}, nil
}

// Decode parses token without verifying its signature.
func (d *Decoder) Decode(token string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrTokenMalformed
	}

	mc := jwt.MapClaims{}
	if _, _, err := d.parser.ParseUnverified(token, mc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	exp, err := mc.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	claims := &Claims{Roles: []string{}}
	if exp != nil {
		t := exp.Time
		claims.ExpiresAt = &t
	}

	for _, key := range d.cfg.SubjectClaimKeys {
		if s, ok := mc[key].(string); ok && strings.TrimSpace(s) != "" {
			claims.Subject = strings.TrimSpace(s)
			break
		}
	}

	for _, key := range d.cfg.RoleClaimKeys {
		if raw, ok := mc[key]; ok {
			claims.Roles = NormalizeRoles(raw)
			break
		}
	}

	return claims, nil
}

// ExpiredLocally reports whether token should be treated as expired at now.
// Undecodable tokens are expired; tokens without exp are not.
func (d *Decoder) ExpiredLocally(token string, now time.Time) bool {
	claims, err := d.Decode(token)
	if err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Before(now.Add(d.cfg.ExpiryBuffer))
}

// NormalizeRoles converts a raw role claim into an ordered, de-duplicated list.
// Arrays, single strings and comma-separated strings are accepted; anything else
// yields an empty list.
func NormalizeRoles(raw any) []string {
	var parts []string

	switch v := raw.(type) {
	case string:
		parts = strings.Split(v, ",")
	case []string:
		parts = v
	case []any:
		parts = make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			}
		}
	}

	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
