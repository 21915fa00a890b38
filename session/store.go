package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrStoreUnavailable is returned when Redis cannot be reached or a command fails.
var ErrStoreUnavailable = errors.New("credential store unavailable")

// ErrNoCredentials is returned by [Store.Get] when no complete record is persisted.
var ErrNoCredentials = errors.New("no credentials")

// DefaultBroadcastTTL bounds how long the logout broadcast marker lives.
const DefaultBroadcastTTL = 5 * time.Second

// Options configures a [Store].
type Options struct {
	// Prefix namespaces every key. Defaults to "gosession".
	Prefix string
	// Origin identifies this process in published mutations.
	Origin string
	// Publisher receives a mutation per key touched. Nil disables fan-out.
	Publisher Publisher
	// BroadcastTTL is the lifetime of the logout broadcast marker.
	BroadcastTTL time.Duration
	// Now supplies the timestamp written to the logout broadcast marker.
	Now    func() time.Time
	Logger *zap.Logger
}

// Store persists the credential record in Redis.
type Store struct {
	redis        redis.UniversalClient
	prefix       string
	origin       string
	pub          Publisher
	broadcastTTL time.Duration
	now          func() time.Time
	log          *zap.Logger
}

// NewStore returns a [Store] over rdb.
func NewStore(rdb redis.UniversalClient, opts Options) *Store {
	if opts.Prefix == "" {
		opts.Prefix = "gosession"
	}
	if opts.BroadcastTTL <= 0 {
		opts.BroadcastTTL = DefaultBroadcastTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Store{
		redis:        rdb,
		prefix:       opts.Prefix,
		origin:       opts.Origin,
		pub:          opts.Publisher,
		broadcastTTL: opts.BroadcastTTL,
		now:          opts.Now,
		log:          opts.Logger,
	}
}

// Key returns the Redis key for a logical key name.
func (s *Store) Key(name string) string {
	return s.prefix + ":" + name
}

// Prefix returns the key namespace.
func (s *Store) Prefix() string {
	return s.prefix
}

// Get returns the persisted record or [ErrNoCredentials] when the token
// triple is incomplete. Missing identity keys leave Record.Identified false.
func (s *Store) Get(ctx context.Context) (*Record, error) {
	vals, err := s.redis.MGet(ctx,
		s.Key(KeyAccessToken),
		s.Key(KeyRefreshToken),
		s.Key(KeyTokenExpiration),
		s.Key(KeyUser),
		s.Key(KeyRoles),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	access, _ := vals[0].(string)
	refresh, _ := vals[1].(string)
	expRaw, _ := vals[2].(string)
	if access == "" || refresh == "" || expRaw == "" {
		return nil, ErrNoCredentials
	}
	expMillis, err := strconv.ParseInt(expRaw, 10, 64)
	if err != nil {
		return nil, ErrNoCredentials
	}

	rec := &Record{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    time.UnixMilli(expMillis),
		Roles:        []string{},
	}
	user, _ := vals[3].(string)
	rec.UserID = user
	rolesOK := false
	if rolesRaw, ok := vals[4].(string); ok && rolesRaw != "" {
		var roles []string
		if err := json.Unmarshal([]byte(rolesRaw), &roles); err == nil && roles != nil {
			rec.Roles = roles
			rolesOK = true
		}
	}
	rec.Identified = user != "" && rolesOK

	return rec, nil
}

// Save writes the token triple atomically. Identity fields are untouched.
func (s *Store) Save(ctx context.Context, access, refresh string, expiresAt time.Time) error {
	if access == "" || refresh == "" {
		return errors.New("access and refresh tokens are required")
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.Key(KeyAccessToken), access, 0)
		pipe.Set(ctx, s.Key(KeyRefreshToken), refresh, 0)
		pipe.Set(ctx, s.Key(KeyTokenExpiration), strconv.FormatInt(expiresAt.UnixMilli(), 10), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.publish(ctx, OpSet, KeyAccessToken, KeyRefreshToken, KeyTokenExpiration)
	return nil
}

// SetIdentity writes the user identifier and role list.
func (s *Store) SetIdentity(ctx context.Context, userID string, roles []string) error {
	if roles == nil {
		roles = []string{}
	}
	encoded, err := json.Marshal(roles)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.Key(KeyUser), userID, 0)
		pipe.Set(ctx, s.Key(KeyRoles), encoded, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.publish(ctx, OpSet, KeyUser, KeyRoles)
	return nil
}

// ExpiresAt returns the persisted expiry.
func (s *Store) ExpiresAt(ctx context.Context) (time.Time, error) {
	raw, err := s.redis.Get(ctx, s.Key(KeyTokenExpiration)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, ErrNoCredentials
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, ErrNoCredentials
	}
	return time.UnixMilli(millis), nil
}

// IsAuthenticated reports whether an access token is persisted.
func (s *Store) IsAuthenticated(ctx context.Context) (bool, error) {
	n, err := s.redis.Exists(ctx, s.Key(KeyAccessToken)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n == 1, nil
}

// Clear removes the record and the version baseline. Calling it on an empty
// store succeeds and publishes nothing.
func (s *Store) Clear(ctx context.Context) error {
	names := []string{KeyAccessToken, KeyRefreshToken, KeyTokenExpiration, KeyUser, KeyRoles, KeyAppVersion}

	cmds := make([]*redis.IntCmd, len(names))
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, name := range names {
			cmds[i] = pipe.Del(ctx, s.Key(name))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	removed := make([]string, 0, len(names))
	for i, cmd := range cmds {
		if cmd.Val() > 0 {
			removed = append(removed, names[i])
		}
	}
	s.publish(ctx, OpDelete, removed...)
	return nil
}

// VersionBaseline returns the persisted deployment version, if any.
func (s *Store) VersionBaseline(ctx context.Context) (string, bool, error) {
	v, err := s.redis.Get(ctx, s.Key(KeyAppVersion)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return v, true, nil
}

// SetVersionBaseline persists the deployment version baseline.
func (s *Store) SetVersionBaseline(ctx context.Context, version string) error {
	if err := s.redis.Set(ctx, s.Key(KeyAppVersion), version, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.publish(ctx, OpSet, KeyAppVersion)
	return nil
}

// ClearVersionBaseline removes the deployment version baseline.
func (s *Store) ClearVersionBaseline(ctx context.Context) error {
	n, err := s.redis.Del(ctx, s.Key(KeyAppVersion)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if n > 0 {
		s.publish(ctx, OpDelete, KeyAppVersion)
	}
	return nil
}

// BroadcastLogout writes the logout marker with a short TTL. Only the write
// matters to peers; the value is the current time in unix millis.
func (s *Store) BroadcastLogout(ctx context.Context) error {
	stamp := strconv.FormatInt(s.now().UnixMilli(), 10)
	if err := s.redis.Set(ctx, s.Key(KeyLogoutBroadcast), stamp, s.broadcastTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.publish(ctx, OpSet, KeyLogoutBroadcast)
	return nil
}

func (s *Store) publish(ctx context.Context, op Op, names ...string) {
	if s.pub == nil {
		return
	}
	at := s.now().UnixMilli()
	for _, name := range names {
		m := Mutation{Origin: s.origin, Key: name, Op: op, At: at}
		if err := s.pub.Publish(ctx, m); err != nil {
			s.log.Warn("publish storage mutation",
				zap.String("key", name),
				zap.Stringer("op", op),
				zap.Error(err),
			)
		}
	}
}
