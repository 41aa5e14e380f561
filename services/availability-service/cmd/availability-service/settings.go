package main

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/dockslots/libs/config"
	"github.com/md-rashed-zaman/dockslots/libs/httpx"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/consumer"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/outbox"
)

type Settings struct {
	Service        string
	Port           string
	GRPCPort       string
	DatabaseURL    string
	DBMaxConns     int
	MigrateOnStart bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	KafkaBrokers       string
	KafkaGroupID       string
	InvalidationTopics []string

	Policy availability.Policy

	AuthMode   string
	JWTSecret  string
	JWKSURL    string
	JWKSCache  time.Duration
	RateLimit  int
	RateFailOK bool
	CORSOrigin []string

	RequestTimeout time.Duration
}

func loadSettings() (Settings, error) {
	var s Settings
	var err error

	s.Service = config.String("SERVICE_NAME", "availability-service")
	if s.Port, err = config.Port("PORT", "8085"); err != nil {
		return s, err
	}
	if s.GRPCPort, err = config.Port("GRPC_PORT", "9095"); err != nil {
		return s, err
	}
	if s.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		return s, err
	}
	if s.DBMaxConns, err = config.Int("DB_MAX_CONNS", 10, 1); err != nil {
		return s, err
	}
	s.MigrateOnStart = config.Bool("MIGRATE_ON_START", false)

	s.RedisAddr = config.String("REDIS_ADDR", "")
	s.RedisPassword = config.String("REDIS_PASSWORD", "")
	if s.RedisDB, err = config.Int("REDIS_DB", 0, 0); err != nil {
		return s, err
	}
	if s.CacheTTL, err = config.Seconds("AVAILABILITY_CACHE_TTL_SECONDS", 60*time.Second); err != nil {
		return s, err
	}

	s.KafkaBrokers = config.String("KAFKA_BROKERS", "")
	s.KafkaGroupID = config.String("KAFKA_GROUP_ID", s.Service)
	s.InvalidationTopics = config.List("KAFKA_INVALIDATION_TOPICS", consumer.EventFacilityConfigChanged+","+
		outbox.EventAppointmentBooked+","+outbox.EventAppointmentCancelled)

	scope, err := availability.ParseCapacityScope(config.String("CAPACITY_SCOPE", string(availability.ScopeAppointmentType)))
	if err != nil {
		return s, err
	}
	s.Policy = availability.DefaultPolicy()
	s.Policy.Scope = scope
	if s.Policy.DefaultDurationMinutes, err = config.Int("DEFAULT_DURATION_MINUTES", s.Policy.DefaultDurationMinutes, 1); err != nil {
		return s, err
	}
	if s.Policy.DefaultBufferMinutes, err = config.Int("DEFAULT_BUFFER_MINUTES", 0, 0); err != nil {
		return s, err
	}

	s.AuthMode = config.String("AUTH_MODE", httpx.TenantModeHeader)
	switch s.AuthMode {
	case httpx.TenantModeHeader:
	case httpx.TenantModeJWT:
		s.JWTSecret = config.String("JWT_SECRET", "")
		s.JWKSURL = config.String("JWKS_URL", "")
		if s.JWTSecret == "" && s.JWKSURL == "" {
			return s, fmt.Errorf("AUTH_MODE=jwt requires JWT_SECRET or JWKS_URL")
		}
	default:
		return s, fmt.Errorf("AUTH_MODE must be %q or %q (got %q)", httpx.TenantModeHeader, httpx.TenantModeJWT, s.AuthMode)
	}
	if s.JWKSCache, err = config.Seconds("JWKS_CACHE_SECONDS", 5*time.Minute); err != nil {
		return s, err
	}
	if s.RateLimit, err = config.Int("RATE_LIMIT_PER_MINUTE", 600, 0); err != nil {
		return s, err
	}
	s.RateFailOK = config.Bool("RATE_LIMIT_FAIL_OPEN", true)
	s.CORSOrigin = config.List("CORS_ALLOWED_ORIGINS", "")

	if s.RequestTimeout, err = config.Seconds("REQUEST_TIMEOUT_SECONDS", 10*time.Second); err != nil {
		return s, err
	}
	return s, nil
}
