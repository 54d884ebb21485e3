package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

const testToken = "tok"

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) (*fixture, http.Handler) {
	t.Helper()
	f := newFixture(t)
	router := NewRouter(f.app, RouterOptions{
		Auth: NewAuthenticator("test-secret", testToken+":"+testHostID),
	})
	return f, router
}

func do(t *testing.T, h http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestSlotsEndpoint(t *testing.T) {
	f, h := newTestRouter(t)
	f.seedBooking(t, "b1", f.at(10, 0), f.at(10, 30))

	rec := do(t, h, http.MethodGet, "/api/public/hosts/ana/event-types/intro/slots?date="+testMonday, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		Date  string `json:"date"`
		Slots []Slot `json:"slots"`
	}
	decode(t, rec, &resp)
	if resp.Date != testMonday || len(resp.Slots) != 16 {
		t.Fatalf("resp = %+v", resp)
	}
	if got := unavailableTimes(resp.Slots); len(got) != 1 || got[0] != "10:00" {
		t.Fatalf("unavailable = %v", got)
	}

	cases := []struct {
		path string
		code int
	}{
		{"/api/public/hosts/ana/event-types/intro/slots", http.StatusBadRequest},
		{"/api/public/hosts/ana/event-types/intro/slots?date=19-10-2026", http.StatusBadRequest},
		{"/api/public/hosts/nobody/event-types/intro/slots?date=" + testMonday, http.StatusNotFound},
		{"/api/public/hosts/ana/event-types/missing/slots?date=" + testMonday, http.StatusNotFound},
	}
	for _, tc := range cases {
		if rec := do(t, h, http.MethodGet, tc.path, nil, ""); rec.Code != tc.code {
			t.Fatalf("%s: status = %d, want %d", tc.path, rec.Code, tc.code)
		}
	}
}

func TestBookingEndpoint(t *testing.T) {
	f, h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/api/public/bookings", validInput("10:00"), "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var created struct {
		BookingID string  `json:"booking_id"`
		Booking   Booking `json:"booking"`
	}
	decode(t, rec, &created)
	if created.BookingID == "" || created.Booking.Status != StatusConfirmed {
		t.Fatalf("created = %+v", created)
	}

	rec = do(t, h, http.MethodPost, "/api/public/bookings", validInput("10:00"), "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("double booking status = %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/public/bookings/"+created.BookingID, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("details status = %d", rec.Code)
	}
	var details BookingDetails
	decode(t, rec, &details)
	if details.HostName != "Ana Host" || details.EventType.Slug != "intro" {
		t.Fatalf("details = %+v", details)
	}
	if len(f.notifier.confirmations) != 1 {
		t.Fatalf("confirmations = %d", len(f.notifier.confirmations))
	}
}

func TestBookingEndpointValidation(t *testing.T) {
	_, h := newTestRouter(t)

	in := validInput("10:00")
	in.GuestEmail = "not-an-email"
	rec := do(t, h, http.MethodPost, "/api/public/bookings", in, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]string
	decode(t, rec, &resp)
	if resp["field"] != "guest_email" || resp["error"] != "invalid email" {
		t.Fatalf("resp = %v", resp)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/public/bookings", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d", rec.Code)
	}
}

func TestHostEndpointsRequireAuth(t *testing.T) {
	_, h := newTestRouter(t)

	for _, token := range []string{"", "wrong"} {
		if rec := do(t, h, http.MethodGet, "/api/me/bookings", nil, token); rec.Code != http.StatusUnauthorized {
			t.Fatalf("token %q: status = %d", token, rec.Code)
		}
	}
	req := httptest.NewRequest(http.MethodGet, "/api/me/bookings", nil)
	req.Header.Set("Authorization", "Token "+testToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("non-bearer status = %d", rec.Code)
	}
}

func TestCancelEndpoint(t *testing.T) {
	f, h := newTestRouter(t)
	f.seedBooking(t, "b1", f.at(10, 0), f.at(10, 30))

	rec := do(t, h, http.MethodPost, "/api/me/bookings/b1/cancel", map[string]string{"reason": "sick"}, testToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	rec = do(t, h, http.MethodDelete, "/api/me/bookings/b1", nil, testToken)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second cancel status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodDelete, "/api/me/bookings/missing", nil, testToken)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing booking status = %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/me/bookings?filter=all", nil, testToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list []BookingSummary
	decode(t, rec, &list)
	if len(list) != 1 || list[0].Status != StatusCancelled || list[0].CancelReason != "sick" {
		t.Fatalf("list = %+v", list)
	}
	if rec := do(t, h, http.MethodGet, "/api/me/bookings?filter=bogus", nil, testToken); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad filter status = %d", rec.Code)
	}
}

func TestAvailabilityEndpoint(t *testing.T) {
	_, h := newTestRouter(t)

	body := []AvailabilityInput{{DayOfWeek: 3, StartTime: "8:00", EndTime: "12:00", IsEnabled: true}}
	rec := do(t, h, http.MethodPut, "/api/me/availability", body, testToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var saved []AvailabilityTemplate
	decode(t, rec, &saved)
	if len(saved) != 1 || saved[0].StartTime != "08:00" {
		t.Fatalf("saved = %+v", saved)
	}

	body[0].EndTime = "07:00"
	rec = do(t, h, http.MethodPut, "/api/me/availability", body, testToken)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("inverted window status = %d", rec.Code)
	}
}

func TestEventTypeEndpoints(t *testing.T) {
	_, h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/api/me/event-types", EventTypeInput{Title: "Long Call", Slug: "long", Duration: 60}, testToken)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body)
	}
	var et EventType
	decode(t, rec, &et)

	rec = do(t, h, http.MethodPost, "/api/me/event-types", EventTypeInput{Title: "Long Call", Slug: "long", Duration: 60}, testToken)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate slug status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/me/event-types/"+et.ID+"/toggle", nil, testToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/public/hosts/ana/event-types/long", nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("inactive public status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodDelete, "/api/me/event-types/"+et.ID, nil, testToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
}

func TestPublicHostPage(t *testing.T) {
	_, h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/public/hosts/ana", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var page HostPage
	decode(t, rec, &page)
	if page.Host.Slug != "ana" || len(page.EventTypes) != 1 {
		t.Fatalf("page = %+v", page)
	}
}

func TestPublicRateLimit(t *testing.T) {
	f := newFixture(t)
	h := NewRouter(f.app, RouterOptions{Auth: NewAuthenticator("", ""), RateLimitPerMin: 2})

	for i := 0; i < 2; i++ {
		if rec := do(t, h, http.MethodGet, "/api/public/hosts/ana", nil, ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	if rec := do(t, h, http.MethodGet, "/api/public/hosts/ana", nil, ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}

	// forwarding headers from an untrusted peer do not open a new bucket
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/public/bookings", bytes.NewBufferString("{}"))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("10.0.1.%d", i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("spoofed client %d status = %d, want 429", i, rec.Code)
		}
	}
}

func TestPublicRateLimitBehindTrustedProxy(t *testing.T) {
	f := newFixture(t)
	// httptest requests come from 192.0.2.1
	h := NewRouter(f.app, RouterOptions{
		Auth:            NewAuthenticator("", ""),
		RateLimitPerMin: 1,
		TrustedProxies:  []string{"192.0.2.0/24"},
	})

	get := func(client string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/public/hosts/ana", nil)
		req.Header.Set("X-Forwarded-For", client)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := get("203.0.113.7"); code != http.StatusOK {
		t.Fatalf("first client status = %d", code)
	}
	if code := get("203.0.113.7"); code != http.StatusTooManyRequests {
		t.Fatalf("first client again status = %d, want 429", code)
	}
	if code := get("203.0.113.8"); code != http.StatusOK {
		t.Fatalf("second client status = %d", code)
	}
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1)
	now := time.Date(2026, time.October, 17, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 100; i++ {
		rl.get(fmt.Sprintf("10.0.0.%d", i))
	}
	if n := rl.size(); n != 100 {
		t.Fatalf("size = %d", n)
	}

	now = now.Add(limiterIdle / 2)
	rl.get("10.0.0.1")
	now = now.Add(limiterIdle / 2)
	if !rl.get("198.51.100.1").Allow() {
		t.Fatal("fresh client limited")
	}
	// only the client seen half an idle period ago and the new one remain
	if n := rl.size(); n != 2 {
		t.Fatalf("size after sweep = %d, want 2", n)
	}
}

func TestHealthAndCalendarEndpoints(t *testing.T) {
	_, h := newTestRouter(t)

	if rec := do(t, h, http.MethodGet, "/healthz", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/me/calendar/google/connect", nil, testToken); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("connect without oauth status = %d", rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/api/me/calendar/status", nil, testToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var status map[string]bool
	decode(t, rec, &status)
	if status["google_configured"] || status["google_connected"] {
		t.Fatalf("calendar status = %v", status)
	}

	if rec := do(t, h, http.MethodGet, "/api/me/calendar/busy?date="+testMonday, nil, testToken); rec.Code != http.StatusOK {
		t.Fatalf("busy status = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/me/calendar/busy?date=nope", nil, testToken); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date status = %d", rec.Code)
	}
}
