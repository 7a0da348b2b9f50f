package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	logx "github.com/leetk321/KTU-GG-Alert-v2/pkg/logx"
)

// ErrNotFound is returned when the backend reports the event is gone.
var ErrNotFound = errors.New("calendar: event not found")

// APIError is a non-2xx backend response that survived retries.
// Temporary() reports whether the failure class is worth retrying later.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	b := e.Body
	if len(b) > 200 {
		b = b[:200] + "..."
	}
	return fmt.Sprintf("calendar: backend returned %d: %s", e.StatusCode, b)
}

func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// TokenProvider supplies a bearer token for each request.
type TokenProvider func(ctx context.Context) (string, error)

// Patch carries a partial event update. Only non-nil fields are serialized,
// so the backend merge-patches exactly what changed.
type Patch struct {
	Start   *time.Time
	Summary *string
	Muted   *bool
}

type Options struct {
	BaseURL       string
	CalendarID    string
	TokenProvider TokenProvider
	HTTPClient    *http.Client
	Location      *time.Location
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	Logger        logx.Logger
}

// Client is the HTTP calendar collaborator. Calls may fail with *APIError;
// callers must not assume success.
type Client struct {
	baseURL    string
	calendarID string
	tokens     TokenProvider
	httpClient *http.Client
	loc        *time.Location
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	log        logx.Logger
}

func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://www.googleapis.com/calendar/v3"
	}
	calendarID := strings.TrimSpace(opts.CalendarID)
	if calendarID == "" {
		calendarID = "primary"
	}
	if opts.TokenProvider == nil {
		return nil, errors.New("calendar: token provider is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	log := opts.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		baseURL:    baseURL,
		calendarID: calendarID,
		tokens:     opts.TokenProvider,
		httpClient: httpClient,
		loc:        loc,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
		log:        log,
	}, nil
}

// Location returns the zone used for scheduling arithmetic and all-day starts.
func (c *Client) Location() *time.Location { return c.loc }

func (c *Client) eventsURL() string {
	return c.baseURL + "/calendars/" + url.PathEscape(c.calendarID) + "/events"
}

func (c *Client) eventURL(id string) string {
	return c.eventsURL() + "/" + url.PathEscape(id)
}

// ListUpcoming returns up to limit events starting at or after now, sorted
// ascending. Events with unresolvable start times are skipped.
func (c *Client) ListUpcoming(ctx context.Context, limit int) ([]Event, error) {
	now := time.Now().In(c.loc)
	return c.list(ctx, now, time.Time{}, limit)
}

// ListRange returns events within [from, to), sorted ascending.
func (c *Client) ListRange(ctx context.Context, from, to time.Time, limit int) ([]Event, error) {
	return c.list(ctx, from, to, limit)
}

func (c *Client) list(ctx context.Context, from, to time.Time, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 300
	}
	q := url.Values{}
	q.Set("timeMin", from.Format(time.RFC3339))
	if !to.IsZero() {
		q.Set("timeMax", to.Format(time.RFC3339))
	}
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")
	q.Set("maxResults", strconv.Itoa(limit))

	var list apiEventList
	if err := c.do(ctx, http.MethodGet, c.eventsURL()+"?"+q.Encode(), nil, &list); err != nil {
		return nil, err
	}
	return c.toEvents(list.Items), nil
}

// Create inserts a new event with a one-hour default duration.
func (c *Client) Create(ctx context.Context, start time.Time, summary string, muted bool) (Event, error) {
	start = start.In(c.loc)
	body := apiEvent{
		Summary: summary,
		Start:   &apiEventTime{DateTime: start.Format(time.RFC3339), TimeZone: c.loc.String()},
		End:     &apiEventTime{DateTime: start.Add(time.Hour).Format(time.RFC3339), TimeZone: c.loc.String()},
		ExtendedProperties: &apiExtendedProperties{
			Private: map[string]string{mutePropertyKey: muteValue(muted)},
		},
	}
	var created apiEvent
	if err := c.do(ctx, http.MethodPost, c.eventsURL(), body, &created); err != nil {
		return Event{}, err
	}
	evs := c.toEvents([]apiEvent{created})
	if len(evs) == 0 {
		return Event{ID: created.ID, Start: start, Summary: summary, Muted: muted}, nil
	}
	return evs[0], nil
}

// Update patches an existing event. Only the fields set in p are sent;
// untouched fields keep their backend values (merge-patch semantics).
func (c *Client) Update(ctx context.Context, id string, p Patch) (Event, error) {
	body := apiEvent{}
	if p.Start != nil {
		start := p.Start.In(c.loc)
		body.Start = &apiEventTime{DateTime: start.Format(time.RFC3339), TimeZone: c.loc.String()}
		body.End = &apiEventTime{DateTime: start.Add(time.Hour).Format(time.RFC3339), TimeZone: c.loc.String()}
	}
	if p.Summary != nil {
		body.Summary = *p.Summary
	}
	if p.Muted != nil {
		body.ExtendedProperties = &apiExtendedProperties{
			Private: map[string]string{mutePropertyKey: muteValue(*p.Muted)},
		}
	}
	var patched apiEvent
	if err := c.do(ctx, http.MethodPatch, c.eventURL(id), body, &patched); err != nil {
		return Event{}, err
	}
	evs := c.toEvents([]apiEvent{patched})
	if len(evs) == 0 {
		return Event{ID: id}, nil
	}
	return evs[0], nil
}

// SetMuted flips only the mute metadata on the event, leaving every other
// field untouched.
func (c *Client) SetMuted(ctx context.Context, id string, muted bool) error {
	_, err := c.Update(ctx, id, Patch{Muted: &muted})
	return err
}

// Delete removes an event. A backend 404/410 maps to ErrNotFound.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.eventURL(id), nil, nil)
}

// Get fetches a single event. Events with unresolvable starts still come
// back with a zero Start so callers can show them; scheduling skips them.
func (c *Client) Get(ctx context.Context, id string) (Event, error) {
	var ev apiEvent
	if err := c.do(ctx, http.MethodGet, c.eventURL(id), nil, &ev); err != nil {
		return Event{}, err
	}
	start, _ := resolveStart(ev.Start, c.loc)
	return Event{ID: ev.ID, Start: start, Summary: strings.TrimSpace(ev.Summary), Muted: isMuted(ev.ExtendedProperties)}, nil
}

func (c *Client) do(ctx context.Context, method, u string, payload, out any) error {
	token, err := c.tokens(ctx)
	if err != nil {
		return fmt.Errorf("calendar: token: %w", err)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("calendar: token is empty")
	}

	var bodyBytes []byte
	if payload != nil {
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return err
		}
	}

	for attempt := 0; ; attempt++ {
		var rd io.Reader
		if bodyBytes != nil {
			rd = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, rd)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(respBody) == 0 {
				return nil
			}
			return json.Unmarshal(respBody, out)
		}

		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			return ErrNotFound
		}

		if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < c.maxRetries {
			if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}

		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if d := parseRetryAfterSeconds(retryAfterHeader); d > 0 {
		if d > c.maxDelay {
			return c.maxDelay
		}
		return d
	}
	d := c.baseDelay * time.Duration(1<<(attempt-1))
	if d > c.maxDelay {
		d = c.maxDelay
	}
	return d
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FileTokenProvider reads a static bearer token from path once at startup.
// Unreadable credential material is a fatal initialization error.
func FileTokenProvider(path string) (TokenProvider, error) {
	b, err := readFileTrimmed(path)
	if err != nil {
		return nil, fmt.Errorf("calendar: credentials: %w", err)
	}
	if b == "" {
		return nil, fmt.Errorf("calendar: credentials file %q is empty", path)
	}
	return func(ctx context.Context) (string, error) { return b, nil }, nil
}

// StaticTokenProvider wraps a literal token (mainly for tests and
// environment-variable based setups).
func StaticTokenProvider(token string) TokenProvider {
	return func(ctx context.Context) (string, error) { return token, nil }
}
