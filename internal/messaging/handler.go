// Package messaging receives WhatsApp messages from Twilio and answers them
// through the scheduling assistant.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/assistant"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/notify"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduling-assistant/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.messaging")

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// Responder produces the reply for one inbound message.
type Responder interface {
	Reply(ctx context.Context, contact, text string) string
}

// ReplySender delivers free-text WhatsApp messages.
type ReplySender interface {
	SendText(ctx context.Context, contact, body string) error
}

// ConsentStore toggles reminder consent for a contact.
type ConsentStore interface {
	SetConsent(ctx context.Context, contact string, consent bool) (bool, error)
}

// HandlerConfig configures webhook verification.
type HandlerConfig struct {
	// WebhookSecret is the Twilio auth token used to verify signatures.
	// Empty disables verification.
	WebhookSecret string
	PublicBaseURL string
}

// Handler handles the WhatsApp webhook.
type Handler struct {
	cfg       HandlerConfig
	responder Responder
	sender    ReplySender
	consent   ConsentStore
	detector  *Detector
	log       *notify.MessageLog
	metrics   *metrics.MessagingMetrics
	logger    *logging.Logger
}

// Option customizes the handler.
type Option func(*Handler)

// WithMessageLog records inbound messages.
func WithMessageLog(l *notify.MessageLog) Option { return func(h *Handler) { h.log = l } }

// WithMetrics records webhook counters and latency.
func WithMetrics(m *metrics.MessagingMetrics) Option { return func(h *Handler) { h.metrics = m } }

// WithConsentStore enables the STOP/ALTA keywords.
func WithConsentStore(c ConsentStore) Option { return func(h *Handler) { h.consent = c } }

// NewHandler creates a webhook handler.
func NewHandler(cfg HandlerConfig, responder Responder, sender ReplySender, logger *logging.Logger, opts ...Option) *Handler {
	if responder == nil {
		panic("messaging: responder cannot be nil")
	}
	if sender == nil {
		panic("messaging: sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{
		cfg:       cfg,
		responder: responder,
		sender:    sender,
		detector:  NewDetector(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// WhatsAppWebhook handles POST /webhooks/whatsapp. The reply is sent through
// the REST API and Twilio receives an empty TwiML response.
func (h *Handler) WhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	ctx, span := tracer.Start(r.Context(), "messaging.whatsapp.webhook")
	defer span.End()

	status := "ok"
	defer func() {
		h.metrics.ObserveInbound(status)
		h.metrics.ObserveWebhookLatency(status, time.Since(started).Seconds())
	}()

	if h.cfg.WebhookSecret != "" && !ValidateTwilioSignature(r, h.cfg.WebhookSecret, webhookURL(r, h.cfg.PublicBaseURL)) {
		status = "unauthorized"
		h.logger.Warn("invalid twilio signature")
		span.RecordError(errors.New("invalid twilio signature"))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	webhook, err := ParseTwilioWebhook(r)
	if err != nil {
		status = "bad_request"
		h.logger.Error("failed to parse twilio webhook", "error", err)
		span.RecordError(err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	contact := notify.NormalizeAddress(webhook.From)
	if contact == "" {
		status = "bad_request"
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	span.SetAttributes(
		attribute.String("clinic.twilio.message_sid", webhook.MessageSid),
		attribute.Int("clinic.twilio.num_media", webhook.NumMedia),
	)

	if webhook.Body == "" {
		status = "ignored"
		h.logger.Info("empty whatsapp message ignored", "contact", logging.MaskContact(contact), "num_media", webhook.NumMedia)
		writeTwiML(w)
		return
	}

	if err := h.log.Record(ctx, notify.LogEntry{
		Direction: notify.DirectionIn,
		Channel:   "whatsapp",
		Contact:   contact,
		Payload:   webhook.Body,
		Status:    "received",
	}); err != nil {
		h.logger.Warn("failed to log inbound message", "error", err)
	}

	reply := h.reply(ctx, contact, webhook.Body)
	if err := h.sender.SendText(context.WithoutCancel(ctx), contact, reply); err != nil {
		status = "send_failed"
		h.logger.Error("failed to send whatsapp reply", "contact", logging.MaskContact(contact), "error", err)
		span.RecordError(err)
	}

	h.logger.Info("whatsapp webhook handled", "contact", logging.MaskContact(contact), "message_sid", webhook.MessageSid, "status", status)
	writeTwiML(w)
}

// reply answers consent keywords locally and everything else through the
// responder. A panic below degrades to the generic processing-error reply.
func (h *Handler) reply(ctx context.Context, contact, body string) (reply string) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("assistant panicked", "contact", logging.MaskContact(contact), "panic", fmt.Sprint(rec))
			reply = assistant.ReplyProcessingError
		}
	}()

	if h.consent != nil {
		switch {
		case h.detector.IsStop(body):
			if _, err := h.consent.SetConsent(ctx, contact, false); err != nil {
				h.logger.Error("failed to revoke consent", "contact", logging.MaskContact(contact), "error", err)
				return assistant.ReplyProcessingError
			}
			return OptOutReply
		case h.detector.IsStart(body):
			if _, err := h.consent.SetConsent(ctx, contact, true); err != nil {
				h.logger.Error("failed to restore consent", "contact", logging.MaskContact(contact), "error", err)
				return assistant.ReplyProcessingError
			}
			return OptInReply
		}
	}

	reply = h.responder.Reply(ctx, contact, body)
	if reply == "" {
		reply = assistant.ReplyProcessingError
	}
	return reply
}

func writeTwiML(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(emptyTwiML))
}
