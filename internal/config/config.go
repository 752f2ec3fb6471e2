package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	AppName       string
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Clinic
	ClinicName       string
	ClinicAddress    string
	ClinicMapsURL    string
	ClinicPrices     string
	Timezone         string
	ClinicHours      string
	ClinicOpenHour   int
	ClinicCloseHour  int
	SlotMinutes      int
	EventDurationMin int

	// Google Calendar (service account)
	GCalCalendarID       string
	GCalServiceAccount   string
	GCalImpersonateEmail string
	CalendarSyncTimeout  time.Duration

	// Twilio WhatsApp
	TwilioAccountSID    string
	TwilioAuthToken     string
	TwilioWhatsAppFrom  string
	TwilioWebhookSecret string
	DryRun              bool

	// LLM
	LLMProvider   string
	OpenAIAPIKey  string
	OpenAIModel   string
	GeminiAPIKey  string
	GeminiModel   string
	LLMTimeout    time.Duration
	LLMMaxToolHop int

	// SendGrid staff notifications
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	StaffEmails       []string

	AdminJWTSecret   string
	SessionTTL       time.Duration
	IdempotencyTTL   time.Duration
	ReminderInterval time.Duration
	WebhookRateLimit int

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		AppName:       getEnv("APP_NAME", "clinic-scheduling-assistant"),
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		ClinicName:       getEnv("CLINIC_NAME", "Consultorio"),
		ClinicAddress:    getEnv("CLINIC_ADDRESS", ""),
		ClinicMapsURL:    getEnv("CLINIC_MAPS_URL", ""),
		ClinicPrices:     getEnv("CLINIC_PRICES", "Consulta general: $500 MXN"),
		Timezone:         getEnv("TIMEZONE", "America/Mexico_City"),
		ClinicHours:      getEnv("CLINIC_HOURS", ""),
		ClinicOpenHour:   getEnvAsInt("CLINIC_OPEN_HOUR", getEnvAsInt("CLINIC_START_HOUR", 0)),
		ClinicCloseHour:  getEnvAsInt("CLINIC_CLOSE_HOUR", getEnvAsInt("CLINIC_END_HOUR", 0)),
		SlotMinutes:      getEnvAsInt("SLOT_MINUTES", 30),
		EventDurationMin: getEnvAsInt("EVENT_DURATION_MIN", 30),

		GCalCalendarID:       getEnv("GCAL_CALENDAR_ID", getEnv("GOOGLE_CALENDAR_ID", "primary")),
		GCalServiceAccount:   strings.TrimSpace(getEnv("GCAL_SA_JSON", getEnv("GOOGLE_CREDENTIALS_JSON", getEnv("GOOGLE_CREDENTIALS_FILE", "")))),
		GCalImpersonateEmail: getEnv("GCAL_IMPERSONATE_EMAIL", ""),
		CalendarSyncTimeout:  getEnvAsDuration("CALENDAR_SYNC_TIMEOUT", 20*time.Second),

		TwilioAccountSID:    getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:     getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioWhatsAppFrom:  getEnv("TWILIO_WHATSAPP_FROM", ""),
		TwilioWebhookSecret: getEnv("TWILIO_WEBHOOK_SECRET", ""),
		DryRun:              getEnvAsBool("DRY_RUN", false),

		LLMProvider:   strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "auto"))),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		LLMTimeout:    getEnvAsDuration("LLM_TIMEOUT", 20*time.Second),
		LLMMaxToolHop: getEnvAsInt("LLM_MAX_TOOL_HOPS", 8),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Asistente del consultorio"),
		StaffEmails:       getEnvAsList("STAFF_EMAILS"),

		AdminJWTSecret:   getEnv("ADMIN_JWT_SECRET", ""),
		SessionTTL:       getEnvAsDuration("SESSION_TTL", 20*time.Minute),
		IdempotencyTTL:   getEnvAsDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		ReminderInterval: getEnvAsDuration("REMINDER_INTERVAL", time.Hour),
		WebhookRateLimit: getEnvAsInt("WEBHOOK_RATE_LIMIT", 60),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
	}
	return cfg
}

// OperatingHours returns the clinic blocks as "HH:MM-HH:MM" specs. CLINIC_HOURS
// wins; otherwise CLINIC_OPEN_HOUR/CLINIC_CLOSE_HOUR form a single block; otherwise
// the morning and afternoon defaults apply.
func (c *Config) OperatingHours() []string {
	if strings.TrimSpace(c.ClinicHours) != "" {
		var out []string
		for _, part := range strings.Split(c.ClinicHours, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	if c.ClinicCloseHour > c.ClinicOpenHour && c.ClinicOpenHour >= 0 {
		return []string{fmt.Sprintf("%02d:00-%02d:00", c.ClinicOpenHour, c.ClinicCloseHour)}
	}
	return []string{"09:00-14:00", "16:00-19:00"}
}

// RedisEnabled reports whether a Redis address was configured.
func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.RedisAddr) != ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
