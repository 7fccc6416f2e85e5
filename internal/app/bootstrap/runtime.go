package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/dental-agenda/internal/appointments"
	appconfig "github.com/wolfman30/dental-agenda/internal/config"
	"github.com/wolfman30/dental-agenda/internal/observability/metrics"
	"github.com/wolfman30/dental-agenda/internal/schedule"
	"github.com/wolfman30/dental-agenda/internal/session"
	"github.com/wolfman30/dental-agenda/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildSessionStore persists the session in Redis when a client is given.
// Otherwise the session lives in memory, seeded from AGENDA_TOKEN and
// AGENDA_USER_ID, and reports false for persistent.
func BuildSessionStore(cfg *appconfig.Config, redisClient *redis.Client) (store session.Store, persistent bool) {
	if redisClient != nil {
		return session.NewRedisStore(redisClient, cfg.SessionProfile, 0), true
	}
	return session.NewMemoryStore(session.Record{
		Token:  strings.TrimSpace(cfg.SessionToken),
		UserID: cfg.SessionUserID,
	}), false
}

// BuildSlotConfig parses the bookable slot layout from config.
func BuildSlotConfig(cfg *appconfig.Config) (schedule.SlotConfig, error) {
	slots, err := schedule.ParseSlotConfig(cfg.SlotOpen, cfg.SlotClose, cfg.SlotStep, cfg.BlackoutStart, cfg.BlackoutEnd)
	if err != nil {
		return schedule.SlotConfig{}, fmt.Errorf("bootstrap: slot config: %w", err)
	}
	return slots, nil
}

// BuildAPIClient creates the clinic API client. tokens may be nil when each
// caller binds its own session with Client.WithTokens.
func BuildAPIClient(cfg *appconfig.Config, tokens appointments.TokenSource, logger *logging.Logger, m *metrics.AgendaMetrics) *appointments.Client {
	return appointments.NewClient(cfg.APIBaseURL, tokens, logger,
		appointments.WithTimeout(cfg.APITimeout),
		appointments.WithMetrics(m),
	)
}

// BuildMetrics registers the agenda metrics together with the Go runtime
// collectors and returns the scrape handler.
func BuildMetrics() (http.Handler, *metrics.AgendaMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewAgendaMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}
