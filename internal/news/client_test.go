package news

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"brokergate/internal/config"
	"brokergate/internal/logger"
	"brokergate/internal/model"
)

func TestCurrenciesToCountries(t *testing.T) {
	got := CurrenciesToCountries([]string{"USD", "EUR", "usd", "gbp", "XXX"})
	want := []string{"US", "DE", "FR", "GB"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFetchEvents(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Origin"); got == "" {
			t.Error("missing Origin header")
		}
		q := r.URL.Query()
		if q.Get("countries") == "" || q.Get("from") == "" || q.Get("to") == "" {
			t.Errorf("missing query params: %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":[
			{"id":319,"title":"CPI m/m","country":"US","currency":"USD","importance":1,
			 "date":"2026-09-01T12:30:00.000Z","actual":2.5,"forecast":2.4,"previous":null,
			 "indicator":"CPI","category":"inflation","source":"BLS","source_url":"https://bls.gov"},
			{"id":320,"title":"Broken","country":"US","importance":0,"date":"not-a-date"}
		]}`))
	}))
	defer ts.Close()

	cfg := config.NewsConfig{Address: ts.URL, Currencies: []string{"USD"}, MinImportance: 0}
	client := NewClient(cfg, logger.NewNopLogger())
	defer client.Close()

	events, err := client.FetchEvents(context.Background(), time.Now(), time.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("FetchEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1 (bad-date row dropped)", len(events))
	}

	e := events[0]
	if e.SourceID != "319" {
		t.Errorf("source id = %q, want 319", e.SourceID)
	}
	if e.Impact != model.ImpactHigh {
		t.Errorf("impact = %q, want high", e.Impact)
	}
	if e.Actual == nil || *e.Actual != "2.5" {
		t.Errorf("actual = %v, want 2.5", e.Actual)
	}
	if e.Previous != nil {
		t.Errorf("previous = %v, want nil", e.Previous)
	}
	if e.EventTypeID != model.EventTypeID("CPI m/m", "US") {
		t.Errorf("event type id mismatch: %q", e.EventTypeID)
	}
	want := time.Date(2026, time.September, 1, 12, 30, 0, 0, time.UTC)
	if !e.EventTime.Equal(want) {
		t.Errorf("event time = %v, want %v", e.EventTime, want)
	}
}
