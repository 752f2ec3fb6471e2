package bootstrap

import (
	"time"

	appconfig "github.com/wolfman30/clinic-scheduling-assistant/internal/config"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/notify"
	"github.com/wolfman30/clinic-scheduling-assistant/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduling-assistant/pkg/logging"
)

// BuildWhatsAppSender creates the outbound WhatsApp sender. Missing Twilio
// credentials force dry-run mode so replies are only logged.
func BuildWhatsAppSender(cfg *appconfig.Config, loc *time.Location, log *notify.MessageLog, m *metrics.MessagingMetrics, logger *logging.Logger) *notify.WhatsAppSender {
	if logger == nil {
		logger = logging.Default()
	}
	dryRun := cfg.DryRun
	if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" || cfg.TwilioWhatsAppFrom == "" {
		if !dryRun {
			logger.Warn("twilio credentials incomplete; outbound WhatsApp runs in dry-run mode")
		}
		dryRun = true
	}
	return notify.NewWhatsAppSender(notify.WhatsAppConfig{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		From:       cfg.TwilioWhatsAppFrom,
		DryRun:     dryRun,
		Location:   loc,
	}, logger, notify.WithMessageLog(log), notify.WithMessagingMetrics(m))
}

// BuildStaffMailer returns the staff notifier or nil when SendGrid or the
// recipient list is not configured.
func BuildStaffMailer(cfg *appconfig.Config, logger *logging.Logger) *notify.StaffMailer {
	sender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger)
	if sender == nil {
		return nil
	}
	return notify.NewStaffMailer(sender, cfg.StaffEmails, cfg.ClinicName, logger)
}
