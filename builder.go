package authkit

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vitaforge/authkit/internal/audit"
	"github.com/vitaforge/authkit/password"
	"github.com/vitaforge/authkit/session"
)

// Builder assembles an Engine. A builder is single-use: Build can be
// called once.
type Builder struct {
	config Config
	redis  *redis.Client

	store     AccountStore
	notifier  Notifier
	resources ResourceStore
	auditSink AuditSink
	clock     func() time.Time

	built bool
}

// New starts a builder with the default configuration.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the configuration. Zero-valued fields are filled
// back in from defaults during Build.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the account store. Required.
func (b *Builder) WithStore(store AccountStore) *Builder {
	b.store = store
	return b
}

// WithNotifier sets the outbound-mail collaborator. Optional; without
// one, verification and reset tokens are minted but never delivered,
// which only makes sense in tests.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithResources sets the user-content collaborator consulted by export
// and deletion. Optional.
func (b *Builder) WithResources(r ResourceStore) *Builder {
	b.resources = r
	return b
}

// WithRedis backs pending two-factor login challenges with redis so
// they survive process restarts and are visible across instances.
// Without it, challenges live in process memory.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithAuditSink sets the destination for audit events. Optional;
// events are dropped silently without one.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the engine's time source. Intended for tests.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// WithSessionKey sets the HS256 session signing key, the one config
// field with no default.
func (b *Builder) WithSessionKey(key []byte) *Builder {
	b.config.Session.Key = key
	return b
}

// Build validates the configuration and assembles the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.store == nil {
		return nil, errors.New("account store required")
	}

	cfg := b.config
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(cfg.Password.Params)
	if err != nil {
		return nil, err
	}
	issuer, err := session.NewIssuer(cfg.Session)
	if err != nil {
		return nil, err
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	var sink audit.Sink = audit.NoOpSink{}
	if b.auditSink != nil {
		sink = b.auditSink
	}

	var challenges challengeStore
	if b.redis != nil {
		challenges = newRedisChallengeStore(b.redis, clock)
	} else {
		challenges = newMemoryChallengeStore(clock)
	}

	engine := &Engine{
		config:     cfg,
		store:      b.store,
		notifier:   b.notifier,
		resources:  b.resources,
		hasher:     hasher,
		sessions:   issuer,
		totp:       newTOTPManager(cfg.TwoFactor),
		challenges: challenges,
		audit:      audit.NewDispatcher(cfg.Audit.dispatcherConfig(), sink),
		metrics:    NewMetrics(),
		clock:      clock,
	}

	b.built = true
	return engine, nil
}
