package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduling-assistant/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.notify")

const defaultTwilioBaseURL = "https://api.twilio.com"

// Message templates recorded in the message log and metrics.
const (
	TemplateConfirmation = "confirmation"
	TemplateReminder     = "reminder_24h"
	TemplateText         = "text"
)

// WhatsAppConfig configures the Twilio WhatsApp sender.
type WhatsAppConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	DryRun     bool
	BaseURL    string
	Location   *time.Location
}

// WhatsAppSender posts WhatsApp messages through Twilio's REST API.
type WhatsAppSender struct {
	cfg        WhatsAppConfig
	httpClient *http.Client
	log        *MessageLog
	metrics    *metrics.MessagingMetrics
	logger     *logging.Logger
	sleep      func(time.Duration)
}

// WhatsAppOption customizes the sender.
type WhatsAppOption func(*WhatsAppSender)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) WhatsAppOption {
	return func(s *WhatsAppSender) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithMessageLog records every outbound message.
func WithMessageLog(l *MessageLog) WhatsAppOption {
	return func(s *WhatsAppSender) { s.log = l }
}

// WithMessagingMetrics counts outbound messages.
func WithMessagingMetrics(m *metrics.MessagingMetrics) WhatsAppOption {
	return func(s *WhatsAppSender) { s.metrics = m }
}

// NewWhatsAppSender builds a sender with sane defaults.
func NewWhatsAppSender(cfg WhatsAppConfig, logger *logging.Logger, opts ...WhatsAppOption) *WhatsAppSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTwilioBaseURL
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s := &WhatsAppSender{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeAddress turns "+52 81..." or "whatsapp: 52..." into "whatsapp:+52...".
func NormalizeAddress(number string) string {
	number = strings.TrimSpace(number)
	if number == "" {
		return ""
	}
	rest := strings.TrimSpace(strings.TrimPrefix(number, "whatsapp:"))
	rest = strings.ReplaceAll(rest, " ", "")
	rest = "+" + strings.TrimLeft(rest, "+")
	return "whatsapp:" + rest
}

// SendConfirmation asks the patient to confirm a reserved slot.
func (s *WhatsAppSender) SendConfirmation(ctx context.Context, contact string, start time.Time) error {
	body := fmt.Sprintf("✅ *Cita reservada*\nFecha y hora: %s\nEscribe *confirmar* para confirmar o *cambiar* para ver otras opciones.",
		s.formatStart(start))
	return s.send(ctx, contact, body, TemplateConfirmation)
}

// SendReminder reminds the patient of an upcoming appointment.
func (s *WhatsAppSender) SendReminder(ctx context.Context, contact string, start time.Time) error {
	body := fmt.Sprintf("⏰ Recordatorio (24h)\nTu cita es: %s\nSi necesitas, escribe *cambiar* para reprogramar o *confirmar* para confirmar.",
		s.formatStart(start))
	return s.send(ctx, contact, body, TemplateReminder)
}

// SendText sends free text, used for assistant replies.
func (s *WhatsAppSender) SendText(ctx context.Context, contact, body string) error {
	return s.send(ctx, contact, body, TemplateText)
}

func (s *WhatsAppSender) formatStart(start time.Time) string {
	return start.In(s.cfg.Location).Format("02/01/2006 15:04")
}

func (s *WhatsAppSender) send(ctx context.Context, contact, body, template string) error {
	to := NormalizeAddress(contact)
	if to == "" {
		return errors.New("notify: to required")
	}
	if strings.TrimSpace(body) == "" {
		return errors.New("notify: body required")
	}
	from := NormalizeAddress(s.cfg.From)

	ctx, span := tracer.Start(ctx, "notify.whatsapp.send")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.template", template))

	flat := strings.ReplaceAll(body, "\n", " | ")
	if s.cfg.DryRun {
		s.logger.Info("dry run whatsapp", "to", to, "template", template, "body", flat)
		s.finish(ctx, to, body, template, "dry_run")
		return nil
	}
	if s.cfg.AccountSID == "" || s.cfg.AuthToken == "" || from == "" {
		s.logger.Warn("twilio not configured, message not sent", "to", to, "template", template, "body", flat)
		s.finish(ctx, to, body, template, "mock")
		return nil
	}

	payload := url.Values{}
	payload.Set("To", to)
	payload.Set("From", from)
	payload.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", strings.TrimRight(s.cfg.BaseURL, "/"), s.cfg.AccountSID)

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
		if err != nil {
			lastErr = err
			break
		}
		req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				s.logger.Info("twilio whatsapp sent", "to", logging.MaskContact(to), "template", template)
				s.finish(ctx, to, body, template, "sent")
				return nil
			}
			lastErr = fmt.Errorf("notify: twilio send failed: %s", formatTwilioError(resp.StatusCode, respBody))
			// Don't retry non-rate-limit 4xx errors.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				break
			}
		}

		if attempt < 3 {
			s.sleep(time.Duration(200+rand.Intn(300)) * time.Millisecond)
		}
	}

	span.RecordError(lastErr)
	s.logger.Error("twilio whatsapp failed", "to", logging.MaskContact(to), "template", template, "error", lastErr)
	s.finish(ctx, to, body, template, "failed")
	return lastErr
}

func (s *WhatsAppSender) finish(ctx context.Context, to, body, template, status string) {
	s.metrics.ObserveOutbound(template, status)
	if s.log == nil {
		return
	}
	if err := s.log.Record(ctx, LogEntry{
		Direction: DirectionOut,
		Channel:   "whatsapp",
		Contact:   to,
		Template:  template,
		Payload:   body,
		Status:    status,
	}); err != nil {
		s.logger.Warn("failed to record outbound message", "error", err)
	}
}

type twilioAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func formatTwilioError(status int, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fmt.Sprintf("status %d", status)
	}
	var parsed twilioAPIError
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("status %d code %d: %s", status, parsed.Code, parsed.Message)
		}
		return fmt.Sprintf("status %d: %s", status, parsed.Message)
	}
	return fmt.Sprintf("status %d: %s", status, trimmed)
}
