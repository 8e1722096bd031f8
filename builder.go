package trustcore

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/RedBox-TN/Backend-sub000/internal/audit"
	"github.com/RedBox-TN/Backend-sub000/password"
	"github.com/RedBox-TN/Backend-sub000/session"
	"github.com/RedBox-TN/Backend-sub000/totp"
)

// Builder assembles an Engine. A Builder can be built once.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	directory Directory
	logger    *zap.Logger
	auditSink AuditSink

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the shared cache client. The engine never creates its own.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithDirectory(dir Directory) *Builder {
	b.directory = dir
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets where audit events go. Without one, events are logged
// through the engine logger when auditing is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.directory == nil {
		return nil, errors.New("directory required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := session.NewStore(b.redis, session.Config{
		Prefix:           cfg.Session.RedisPrefix,
		TokenBytes:       cfg.Session.TokenBytes,
		MaxTokenAttempts: cfg.Session.MaxTokenAttempts,
	})
	if err != nil {
		return nil, err
	}

	ph, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		Pepper:           []byte(cfg.Password.Pepper),
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}

	tp, err := totp.New(totp.Config{
		Issuer:     cfg.TOTP.Issuer,
		SecretSize: cfg.TOTP.SecretSize,
		Digits:     cfg.TOTP.Digits,
		Period:     cfg.TOTP.Period,
		Skew:       cfg.TOTP.Skew,
		Algorithm:  cfg.TOTP.Algorithm,
	})
	if err != nil {
		return nil, err
	}

	sink := b.auditSink
	if sink == nil {
		sink = audit.NewZapSink(logger)
	}

	engine := &Engine{
		config:    cfg,
		directory: b.directory,
		sessions:  store,
		hasher:    ph,
		totp:      tp,
		tfaLimiter: newTFALimiter(b.redis, tfaLimiterConfig{
			prefix:      cfg.Session.RedisPrefix,
			maxAttempts: cfg.TOTP.MaxAttempts,
			window:      cfg.Session.PendingTTL,
		}),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			Logger:     logger,
		}, sink),
		metrics: NewMetrics(cfg.Metrics),
		logger:  logger.Named("trustcore"),
		now:     time.Now,
	}

	b.built = true

	return engine, nil
}
