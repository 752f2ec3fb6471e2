package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GoogleConfig configures the service-account backed provider.
type GoogleConfig struct {
	CalendarID string
	// ServiceAccount is either the JSON key itself or a path to it.
	ServiceAccount string
	// ImpersonateEmail enables domain-wide delegation when set.
	ImpersonateEmail string
	Timezone         string
}

// GoogleProvider talks to Google Calendar v3.
type GoogleProvider struct {
	events     *gcal.EventsService
	calendars  *gcal.CalendarsService
	calendarID string
	timezone   string
}

// NewGoogleProvider authenticates with the configured service account.
func NewGoogleProvider(ctx context.Context, cfg GoogleConfig) (*GoogleProvider, error) {
	key, err := loadServiceAccount(cfg.ServiceAccount)
	if err != nil {
		return nil, err
	}
	var opts []option.ClientOption
	if cfg.ImpersonateEmail != "" {
		jwtCfg, err := google.JWTConfigFromJSON(key, gcal.CalendarScope)
		if err != nil {
			return nil, fmt.Errorf("calendar: parse service account: %w", err)
		}
		jwtCfg.Subject = cfg.ImpersonateEmail
		opts = append(opts, option.WithTokenSource(jwtCfg.TokenSource(ctx)))
	} else {
		opts = append(opts, option.WithCredentialsJSON(key), option.WithScopes(gcal.CalendarScope))
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar: create service: %w", err)
	}
	return newGoogleProvider(svc, cfg), nil
}

// NewGoogleProviderWithOptions builds a provider from explicit client options.
func NewGoogleProviderWithOptions(ctx context.Context, cfg GoogleConfig, opts ...option.ClientOption) (*GoogleProvider, error) {
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar: create service: %w", err)
	}
	return newGoogleProvider(svc, cfg), nil
}

func newGoogleProvider(svc *gcal.Service, cfg GoogleConfig) *GoogleProvider {
	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	return &GoogleProvider{
		events:     svc.Events,
		calendars:  svc.Calendars,
		calendarID: calendarID,
		timezone:   cfg.Timezone,
	}
}

func loadServiceAccount(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("calendar: service account not configured")
	}
	if strings.HasPrefix(value, "{") {
		return []byte(value), nil
	}
	data, err := os.ReadFile(value)
	if err != nil {
		return nil, fmt.Errorf("calendar: read service account file: %w", err)
	}
	return data, nil
}

// Create inserts an event and returns its id.
func (p *GoogleProvider) Create(ctx context.Context, ev Event) (string, error) {
	body := &gcal.Event{
		Summary:     ev.Summary,
		Location:    ev.Location,
		Description: ev.Description,
		Start:       p.dateTime(ev.Start),
		End:         p.dateTime(ev.Start.Add(ev.Duration)),
	}
	created, err := p.events.Insert(p.calendarID, body).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("calendar: insert event: %w", err)
	}
	return created.Id, nil
}

// Update moves an existing event.
func (p *GoogleProvider) Update(ctx context.Context, id string, start time.Time, duration time.Duration) error {
	body := &gcal.Event{
		Start: p.dateTime(start),
		End:   p.dateTime(start.Add(duration)),
	}
	if _, err := p.events.Patch(p.calendarID, id, body).Context(ctx).Do(); err != nil {
		if isGone(err) {
			return fmt.Errorf("calendar: patch event %s: %w", id, ErrEventGone)
		}
		return fmt.Errorf("calendar: patch event %s: %w", id, err)
	}
	return nil
}

// Delete removes an event. Missing events are not an error.
func (p *GoogleProvider) Delete(ctx context.Context, id string) error {
	if err := p.events.Delete(p.calendarID, id).Context(ctx).Do(); err != nil && !isGone(err) {
		return fmt.Errorf("calendar: delete event %s: %w", id, err)
	}
	return nil
}

// Summary fetches the calendar title; used as a connectivity check.
func (p *GoogleProvider) Summary(ctx context.Context) (string, error) {
	cal, err := p.calendars.Get(p.calendarID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("calendar: get calendar: %w", err)
	}
	return cal.Summary, nil
}

func (p *GoogleProvider) dateTime(t time.Time) *gcal.EventDateTime {
	return &gcal.EventDateTime{DateTime: t.Format(time.RFC3339), TimeZone: p.timezone}
}

func isGone(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone
	}
	return false
}
