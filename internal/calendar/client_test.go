package calendar

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(Options{
		BaseURL:       srv.URL,
		CalendarID:    "cal@group.calendar.google.com",
		TokenProvider: StaticTokenProvider("tok"),
		Location:      time.UTC,
		BaseDelay:     time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestListRangeParsesAndSorts(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		q := r.URL.Query()
		if q.Get("singleEvents") != "true" || q.Get("orderBy") != "startTime" {
			t.Errorf("unexpected query: %v", q)
		}
		_ = json.NewEncoder(w).Encode(apiEventList{Items: []apiEvent{
			{ID: "b", Summary: " 나중 일정 ", Start: &apiEventTime{DateTime: "2026-06-02T10:00:00+09:00"}},
			{ID: "a", Summary: "먼저 일정", Start: &apiEventTime{DateTime: "2026-06-01T10:00:00+09:00"},
				ExtendedProperties: &apiExtendedProperties{Private: map[string]string{"mute": "v"}}},
			{ID: "broken"},
			{ID: "allday", Summary: "종일 일정", Start: &apiEventTime{Date: "2026-06-03"}},
		}})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	from := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	events, err := c.ListRange(t.Context(), from, from.AddDate(0, 1, 0), 100)
	if err != nil {
		t.Fatalf("ListRange: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3 (unresolvable start skipped)", len(events))
	}
	if events[0].ID != "a" || events[1].ID != "b" || events[2].ID != "allday" {
		t.Fatalf("order = %s,%s,%s", events[0].ID, events[1].ID, events[2].ID)
	}
	if !events[0].Muted || events[1].Muted {
		t.Fatal("mute flag mapped wrong")
	}
	if events[1].Summary != "나중 일정" {
		t.Fatalf("summary not trimmed: %q", events[1].Summary)
	}
	if h, m, _ := events[2].Start.Clock(); h != 0 || m != 0 {
		t.Fatalf("all-day start = %v, want midnight", events[2].Start)
	}
}

func TestUpdateSendsOnlyPatchedFields(t *testing.T) {
	t.Parallel()
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(apiEvent{
			ID: "ev1", Summary: "old name",
			Start: &apiEventTime{DateTime: "2026-06-01T10:00:00Z"},
		})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	muted := true
	if _, err := c.Update(t.Context(), "ev1", Patch{Muted: &muted}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, ok := got["summary"]; ok {
		t.Fatal("summary sent in a mute-only patch")
	}
	if _, ok := got["start"]; ok {
		t.Fatal("start sent in a mute-only patch")
	}
	props, ok := got["extendedProperties"].(map[string]any)
	if !ok {
		t.Fatalf("extendedProperties missing: %v", got)
	}
	private, _ := props["private"].(map[string]any)
	if private["mute"] != "v" {
		t.Fatalf("mute value = %v, want v", private["mute"])
	}
}

func TestDeleteMapsGoneToErrNotFound(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	if err := c.Delete(t.Context(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete err = %v, want ErrNotFound", err)
	}
}

func TestDoRetriesServerErrors(t *testing.T) {
	t.Parallel()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(apiEventList{})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	if _, err := c.ListUpcoming(t.Context(), 10); err != nil {
		t.Fatalf("ListUpcoming after retries: %v", err)
	}
	if calls != 3 {
		t.Fatalf("backend saw %d calls, want 3", calls)
	}
}

func TestDoGivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.ListUpcoming(t.Context(), 10)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError || !apiErr.Temporary() {
		t.Fatalf("unexpected APIError: %+v", apiErr)
	}
}

func TestDoClientErrorNotRetried(t *testing.T) {
	t.Parallel()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.ListUpcoming(t.Context(), 10)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Temporary() {
		t.Fatalf("err = %v, want non-temporary *APIError", err)
	}
	if calls != 1 {
		t.Fatalf("backend saw %d calls, want 1", calls)
	}
}

func TestRetryDelayHonorsRetryAfter(t *testing.T) {
	t.Parallel()
	c := &Client{baseDelay: time.Millisecond, maxDelay: 2 * time.Second}
	if d := c.retryDelay(1, "1"); d != time.Second {
		t.Fatalf("retryDelay with header = %v, want 1s", d)
	}
	if d := c.retryDelay(1, "30"); d != 2*time.Second {
		t.Fatalf("retryDelay capped = %v, want maxDelay", d)
	}
	if d := c.retryDelay(2, ""); d != 2*time.Millisecond {
		t.Fatalf("retryDelay backoff = %v, want 2ms", d)
	}
}
