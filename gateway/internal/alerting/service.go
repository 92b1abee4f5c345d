package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/viaduct-io/viaduct/gateway/internal/db"
	"github.com/viaduct-io/viaduct/gateway/internal/repository"
)

// KeyAlertRecipients is the setting holding a comma-separated list of email
// addresses that receive every alert. Alerts are operator-facing, so there
// is no per-tenant or per-user targeting — just the addresses the operator
// configured for this Gateway instance.
const KeyAlertRecipients = "alert.recipients"

// Service is the single entry point for firing operator alerts. It persists
// a db.AlertLog row and fans out to email and webhook. Unlike a chatbot
// platform surface, there is no in-app/realtime delivery leg — the Gateway
// has no browser-facing component to push to; the AlertLog table and the
// configured external channels are the only audience.
//
// Callers (tunnel.LivenessMonitor, tunnel.Endpoint, router.DirectExecutor)
// should use the typed methods below rather than constructing events
// manually, so alert content stays consistent across the codebase.
type Service interface {
	// NotifySessionExpired fires when the Liveness Monitor reaps a session
	// whose heartbeat went stale.
	NotifySessionExpired(ctx context.Context, databaseID uuid.UUID, databaseName string) error

	// NotifyAuthFailed fires when an Agent's AUTH_REQUEST is rejected during
	// the tunnel handshake.
	NotifyAuthFailed(ctx context.Context, reason, remoteAddr string) error

	// NotifyDirectConnectionFailed fires when the Direct Executor's
	// reachability probe fails for a database configured for direct or
	// auto routing.
	NotifyDirectConnectionFailed(ctx context.Context, databaseID uuid.UUID, databaseName, errMsg string) error
}

// alertService is the concrete implementation of Service.
type alertService struct {
	logRepo  repository.AlertLogRepository
	settings repository.SettingRepository
	email    *emailSender
	webhook  *webhookSender
	logger   *zap.Logger
}

// Config holds the dependencies required to build an alerting Service.
type Config struct {
	LogRepo  repository.AlertLogRepository
	Settings repository.SettingRepository
	Logger   *zap.Logger
}

// NewService creates a new alerting Service. The email and webhook senders
// are wired internally — callers only need to provide the Config dependencies.
func NewService(cfg Config) Service {
	svc := &alertService{
		logRepo:  cfg.LogRepo,
		settings: cfg.Settings,
		logger:   cfg.Logger.Named("alerting"),
	}

	// Wire senders with config loaders bound to this service's settings
	// repo. Config is reloaded on every send — no restart needed after a
	// settings change.
	svc.email = newEmailSender(func(ctx context.Context) (*SMTPConfig, error) {
		return loadSMTPConfig(ctx, cfg.Settings)
	})
	svc.webhook = newWebhookSender(func(ctx context.Context) (*WebhookConfig, error) {
		return loadWebhookConfig(ctx, cfg.Settings)
	})

	return svc
}

// -----------------------------------------------------------------------------
// Public typed methods
// -----------------------------------------------------------------------------

func (s *alertService) NotifySessionExpired(ctx context.Context, databaseID uuid.UUID, databaseName string) error {
	payload := map[string]any{
		"database_id":   databaseID.String(),
		"database_name": databaseName,
	}
	return s.fire(ctx, event{
		kind:    "session.expired",
		subject: fmt.Sprintf("Tunnel session expired: %s", databaseName),
		body:    fmt.Sprintf("The tunnel session for database %q went stale and was terminated at %s. The Agent must reconnect before tunnel-routed queries succeed again.", databaseName, time.Now().UTC().Format(time.RFC3339)),
		payload: payload,
	})
}

func (s *alertService) NotifyAuthFailed(ctx context.Context, reason, remoteAddr string) error {
	payload := map[string]any{
		"reason":      reason,
		"remote_addr": remoteAddr,
	}
	return s.fire(ctx, event{
		kind:    "auth.failed",
		subject: "Agent handshake rejected",
		body:    fmt.Sprintf("An AUTH_REQUEST from %s was rejected at %s: %s", remoteAddr, time.Now().UTC().Format(time.RFC3339), reason),
		payload: payload,
	})
}

func (s *alertService) NotifyDirectConnectionFailed(ctx context.Context, databaseID uuid.UUID, databaseName, errMsg string) error {
	payload := map[string]any{
		"database_id":   databaseID.String(),
		"database_name": databaseName,
		"error":         errMsg,
	}
	return s.fire(ctx, event{
		kind:    "direct.failed",
		subject: fmt.Sprintf("Direct connection unreachable: %s", databaseName),
		body:    fmt.Sprintf("A direct reachability probe for database %q failed at %s: %s", databaseName, time.Now().UTC().Format(time.RFC3339), errMsg),
		payload: payload,
	})
}

// -----------------------------------------------------------------------------
// Internal event dispatch
// -----------------------------------------------------------------------------

// event carries the data for a single alert before it is persisted and
// fanned out to delivery channels.
type event struct {
	kind    string
	subject string
	body    string
	payload map[string]any
}

// fire is the internal dispatch method. It:
//  1. Persists one db.AlertLog row — the durable, authoritative record.
//  2. Fans out to email and webhook (errors are logged, not returned, so
//     that an SMTP failure never prevents the AlertLog row from being saved).
func (s *alertService) fire(ctx context.Context, ev event) error {
	payloadJSON, err := json.Marshal(ev.payload)
	if err != nil {
		return fmt.Errorf("alerting: failed to marshal payload: %w", err)
	}

	log := &db.AlertLog{
		Event:   ev.kind,
		Subject: ev.subject,
		Body:    ev.body,
		Payload: string(payloadJSON),
	}
	if err := s.logRepo.Create(ctx, log); err != nil {
		s.logger.Error("failed to persist alert log",
			zap.String("event", ev.kind),
			zap.Error(err),
		)
	}

	recipients := s.loadRecipients(ctx)

	if err := s.email.Send(ctx, recipients, ev.subject, ev.body); err != nil {
		s.logger.Warn("email alert delivery failed",
			zap.String("event", ev.kind),
			zap.Error(err),
		)
	}

	if err := s.webhook.Send(ctx, ev.kind, ev.subject, ev.body, ev.payload); err != nil {
		s.logger.Warn("webhook alert delivery failed",
			zap.String("event", ev.kind),
			zap.Error(err),
		)
	}

	return nil
}

// loadRecipients reads the comma-separated KeyAlertRecipients setting. A
// missing setting yields no recipients — email.Send is a no-op in that case.
func (s *alertService) loadRecipients(ctx context.Context) []string {
	setting, err := s.settings.Get(ctx, KeyAlertRecipients)
	if err != nil {
		return nil
	}
	raw := string(setting.Value)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	recipients := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			recipients = append(recipients, trimmed)
		}
	}
	return recipients
}
