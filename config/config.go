package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL   string        `env:"DATABASE_URL" envDefault:"postgresql://postgres@localhost:5432/leaveflow"`
	JWTSecret     string        `env:"JWT_SECRET" envDefault:"your-super-secret-key-change-in-production"`
	JWTExpiration time.Duration `env:"JWT_EXPIRATION" envDefault:"24h"`
	ServerPort    string        `env:"SERVER_PORT" envDefault:"8080"`
	AdminPassword string        `env:"ADMIN_PASSWORD" envDefault:"admin"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`

	// AuthzCacheTTL bounds how long a revoked role may still be honoured.
	AuthzCacheTTL    time.Duration `env:"AUTHZ_CACHE_TTL" envDefault:"5m"`
	BreakGlassUserID uint          `env:"BREAK_GLASS_USER_ID" envDefault:"0"`
	ChainMaxDepth    int           `env:"CHAIN_MAX_DEPTH" envDefault:"10"`

	NATSURL           string `env:"NATS_URL"`
	NATSSubjectPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"notifications.leave"`

	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1m"`
	ReconcileRate     float64       `env:"RECONCILE_RATE" envDefault:"5"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}
