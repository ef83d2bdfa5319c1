package calendarclient

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/bandstand/rehearsal-scheduler/internal/config"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/window"
	"github.com/bandstand/rehearsal-scheduler/pkg/utils"
)

// Google rejects free/busy queries spanning more than this
const maxQuerySpan = 60 * 24 * time.Hour

// Client wraps the Google Calendar API client
type Client struct {
	service *calendar.Service
}

// NewClient creates a Calendar client, running the OAuth consent flow if no
// usable token is stored for env
func NewClient(ctx context.Context, oauthCfg *config.OAuthClientConfig, env string, logger *zap.Logger) (*Client, error) {
	oauthConfig, err := utils.GetOAuthConfig(oauthCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to get oauth config: %w", err)
	}

	tokens, err := utils.NewTokenStore()
	if err != nil {
		return nil, err
	}

	token, err := tokens.Token(ctx, oauthConfig, env, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to get oauth token: %w", err)
	}

	return NewClientWithOptions(ctx, option.WithHTTPClient(oauthConfig.Client(ctx, token)))
}

// NewClientWithOptions creates a Calendar client from explicit API options
func NewClientWithOptions(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &Client{service: service}, nil
}

// BusyWindows returns the busy blocks of one calendar inside span, sorted by start
// and clipped to span. Spans longer than Google's query limit are split.
func (c *Client) BusyWindows(ctx context.Context, calendarID string, span window.Window) ([]window.Window, error) {
	if err := span.Validate(); err != nil {
		return nil, err
	}

	var busy []window.Window
	for start := span.Start; start.Before(span.End); start = start.Add(maxQuerySpan) {
		end := start.Add(maxQuerySpan)
		if end.After(span.End) {
			end = span.End
		}

		part, err := c.query(ctx, calendarID, window.Window{Start: start, End: end})
		if err != nil {
			return nil, err
		}
		busy = append(busy, part...)
	}

	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })
	return busy, nil
}

func (c *Client) query(ctx context.Context, calendarID string, span window.Window) ([]window.Window, error) {
	resp, err := c.service.Freebusy.Query(&calendar.FreeBusyRequest{
		TimeMin: span.Start.Format(time.RFC3339),
		TimeMax: span.End.Format(time.RFC3339),
		Items:   []*calendar.FreeBusyRequestItem{{Id: calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to query free/busy: %w", err)
	}

	cal, ok := resp.Calendars[calendarID]
	if !ok {
		return nil, fmt.Errorf("calendar %s missing from free/busy response", calendarID)
	}
	if len(cal.Errors) > 0 {
		return nil, fmt.Errorf("calendar %s: %s", calendarID, cal.Errors[0].Reason)
	}

	var busy []window.Window
	for _, period := range cal.Busy {
		start, err := time.Parse(time.RFC3339, period.Start)
		if err != nil {
			return nil, fmt.Errorf("failed to parse busy start %q: %w", period.Start, err)
		}
		end, err := time.Parse(time.RFC3339, period.End)
		if err != nil {
			return nil, fmt.Errorf("failed to parse busy end %q: %w", period.End, err)
		}

		w, err := window.New(start, end)
		if err != nil {
			continue
		}
		if clipped, ok := w.Intersect(span); ok {
			busy = append(busy, clipped)
		}
	}
	return busy, nil
}
