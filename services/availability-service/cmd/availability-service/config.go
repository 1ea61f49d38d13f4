package main

import (
	"strings"
	"time"

	"github.com/servicehomie/platform/libs/config"
	"github.com/servicehomie/platform/libs/kafkax"
)

type settings struct {
	Service     string
	Port        string
	GRPCPort    string
	DatabaseURL string
	DBMaxConns  int
	AutoMigrate bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	KafkaBrokers []string
	KafkaGroupID string
	OutboxPoll   time.Duration

	JWTSecret string

	StripeSecretKey     string
	StripeWebhookSecret string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string
	Currency            string

	HorizonDays        int
	SlotStepMinutes    int
	RateLimitPerMinute int
	TrustProxyHops     int
	CORSOrigins        []string
	RequestTimeout     time.Duration
	MaxBodyBytes       int64
}

func loadSettings() (settings, error) {
	var (
		s   settings
		err error
	)
	s.Service = config.String("SERVICE_NAME", "availability-service")
	if s.Port, err = config.Port("PORT", "8080"); err != nil {
		return s, err
	}
	if s.GRPCPort, err = config.Port("GRPC_PORT", "9090"); err != nil {
		return s, err
	}
	if s.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		return s, err
	}
	if s.DBMaxConns, err = config.Int("DB_MAX_CONNS", 10); err != nil {
		return s, err
	}
	if s.AutoMigrate, err = config.Bool("DB_AUTO_MIGRATE", false); err != nil {
		return s, err
	}

	s.RedisAddr = config.String("REDIS_ADDR", "localhost:6379")
	s.RedisPassword = config.String("REDIS_PASSWORD", "")
	if s.RedisDB, err = config.NonNegativeInt("REDIS_DB", 0); err != nil {
		return s, err
	}
	if s.CacheTTL, err = config.Duration("CACHE_TTL_SECONDS", time.Second, 10*time.Minute); err != nil {
		return s, err
	}

	s.KafkaBrokers = kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	s.KafkaGroupID = config.String("KAFKA_GROUP_ID", "availability-service")
	if s.OutboxPoll, err = config.Duration("OUTBOX_POLL_MS", time.Millisecond, 2*time.Second); err != nil {
		return s, err
	}

	if s.JWTSecret, err = config.RequiredString("JWT_SECRET"); err != nil {
		return s, err
	}

	s.StripeSecretKey = config.String("STRIPE_SECRET_KEY", "")
	s.StripeWebhookSecret = config.String("STRIPE_WEBHOOK_SECRET", "")
	s.CheckoutSuccessURL = config.String("CHECKOUT_SUCCESS_URL", "")
	s.CheckoutCancelURL = config.String("CHECKOUT_CANCEL_URL", "")
	s.Currency = strings.ToLower(config.String("CHECKOUT_CURRENCY", "usd"))

	if s.HorizonDays, err = config.Int("BOOKING_HORIZON_DAYS", 30); err != nil {
		return s, err
	}
	if s.SlotStepMinutes, err = config.Int("SLOT_STEP_MINUTES", 30); err != nil {
		return s, err
	}
	if s.RateLimitPerMinute, err = config.NonNegativeInt("RATE_LIMIT_PER_MINUTE", 30); err != nil {
		return s, err
	}
	if s.TrustProxyHops, err = config.NonNegativeInt("TRUST_PROXY_HOPS", 0); err != nil {
		return s, err
	}
	if origins := config.String("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		s.CORSOrigins = strings.Split(origins, ",")
	}
	if s.RequestTimeout, err = config.Duration("REQUEST_TIMEOUT_SECONDS", time.Second, 15*time.Second); err != nil {
		return s, err
	}
	s.MaxBodyBytes = 1 << 20
	return s, nil
}
