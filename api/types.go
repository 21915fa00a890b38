package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Expiration is a token expiry accepted as an RFC 3339 string, a numeric
// string, or a JSON number. Numbers above 1e12 are unix millis, otherwise
// unix seconds.
type Expiration struct {
	time.Time
}

func (e *Expiration) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		e.Time = time.Time{}
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			e.Time = t
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("token expiration %q: unsupported format", s)
		}
		e.Time = fromUnix(n)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	e.Time = fromUnix(int64(f))
	return nil
}

func fromUnix(n int64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}

// TokenResponse is the token triple returned by login and refresh.
type TokenResponse struct {
	Token           string     `json:"token"`
	RefreshToken    string     `json:"refreshToken"`
	TokenExpiration Expiration `json:"tokenExpiration"`
}

func (r *TokenResponse) valid() bool {
	return r.Token != "" && r.RefreshToken != "" && !r.TokenExpiration.IsZero()
}

// LoginResponse is the login result. Roles keeps the raw JSON shape; callers
// normalize it.
type LoginResponse struct {
	TokenResponse
	Roles any `json:"roles,omitempty"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type versionResponse struct {
	Version string `json:"version"`
}
