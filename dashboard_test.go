package carepulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpalmerr/carepulse/statcard"
)

func nhiaCard(id, field string) CardSpec {
	return CardSpec{
		ID:       id,
		Title:    "Malaria " + field,
		Icon:     "🦟",
		Resource: ResourceNHIAStatus,
		Params:   map[string]string{"disease_name": "Malaria", "year": "2024"},
		Field:    field,
	}
}

func TestNewDashboard_Validation(t *testing.T) {
	client, err := New("http://localhost", WithGCInterval(0))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()

	card := nhiaCard("cases", "total")

	tests := []struct {
		name    string
		client  *Client
		opts    []DashboardOption
		wantErr string
	}{
		{name: "valid", client: client, opts: []DashboardOption{WithCards(card)}},
		{name: "nil client", opts: []DashboardOption{WithCards(card)}, wantErr: "client is required"},
		{name: "no cards", client: client, wantErr: "at least one card"},
		{name: "duplicate IDs", client: client, opts: []DashboardOption{WithCards(card, card)}, wantErr: "duplicate card ID"},
		{name: "empty ID", client: client, opts: []DashboardOption{WithCards(CardSpec{Resource: ResourceHospitals})}, wantErr: "ID is required"},
		{
			name:    "unknown resource",
			client:  client,
			opts:    []DashboardOption{WithCards(CardSpec{ID: "beds", Resource: "beds"})},
			wantErr: "unknown resource",
		},
		{
			name:    "unknown param",
			client:  client,
			opts:    []DashboardOption{WithCards(CardSpec{ID: "h", Resource: ResourceHospitals, Params: map[string]string{"region": "x"}})},
			wantErr: "has no parameter",
		},
		{name: "port too low", client: client, opts: []DashboardOption{WithCards(card), WithPort(0)}, wantErr: "port"},
		{name: "port too high", client: client, opts: []DashboardOption{WithCards(card), WithPort(70000)}, wantErr: "port"},
		{name: "zero concurrency", client: client, opts: []DashboardOption{WithCards(card), WithMaxConcurrency(0)}, wantErr: "max concurrency"},
		{name: "negative refresh", client: client, opts: []DashboardOption{WithCards(card), WithRefreshInterval(-time.Second)}, wantErr: "refresh interval"},
		{name: "empty title", client: client, opts: []DashboardOption{WithCards(card), WithTitle("")}, wantErr: "title"},
		{name: "nil logger", client: client, opts: []DashboardOption{WithCards(card), WithDashboardLogger(nil)}, wantErr: "logger"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDashboard(tt.client, tt.opts...)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("NewDashboard() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("NewDashboard() should return error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("NewDashboard() error = %v, want to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewDashboard_Defaults(t *testing.T) {
	client, err := New("http://localhost", WithGCInterval(0))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()

	d, err := NewDashboard(client, WithCards(nhiaCard("cases", "total")))
	if err != nil {
		t.Fatalf("NewDashboard() error = %v", err)
	}

	if d.Port() != defaultPort {
		t.Errorf("Port() = %d, want %d", d.Port(), defaultPort)
	}
	if d.RefreshInterval() != defaultRefreshInterval {
		t.Errorf("RefreshInterval() = %v, want %v", d.RefreshInterval(), defaultRefreshInterval)
	}

	cards := d.Cards()
	cards[0].ID = "changed"
	if d.Cards()[0].ID != "cases" {
		t.Error("Cards() should return a copy")
	}
}

func TestNewDashboard_WithCardsAccumulates(t *testing.T) {
	client, err := New("http://localhost", WithGCInterval(0))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()

	d, err := NewDashboard(client,
		WithCards(nhiaCard("a", "total")),
		WithCards(nhiaCard("b", "insured"), nhiaCard("c", "uninsured")),
	)
	if err != nil {
		t.Fatalf("NewDashboard() error = %v", err)
	}

	got := d.Cards()
	if len(got) != 3 || got[0].ID != "a" || got[2].ID != "c" {
		t.Errorf("Cards() = %+v, want a, b, c in order", got)
	}
}

func TestCardProps(t *testing.T) {
	spec := CardSpec{Title: "Insured", Description: "NHIA", Icon: "🏥", Field: "insured", Field2: "total"}
	payload := json.RawMessage(`{"insured": 980, "total": 1204}`)
	apiErr := &APIError{Kind: KindServerError, StatusCode: 500}

	tests := []struct {
		name     string
		spec     CardSpec
		enabled  bool
		result   Result[json.RawMessage]
		wantKind statcard.Kind
		want     statcard.View
	}{
		{
			name:     "error wins over data",
			spec:     spec,
			enabled:  true,
			result:   Result[json.RawMessage]{Status: StatusError, Err: apiErr},
			wantKind: statcard.KindError,
			want:     statcard.View{Message: statcard.DefaultErrorMessage},
		},
		{
			name:     "disabled shows neutral value",
			spec:     spec,
			result:   Result[json.RawMessage]{Status: StatusIdle},
			wantKind: statcard.KindReady,
			want:     statcard.View{Title: "Insured", Value: "N/A"},
		},
		{
			name:     "no data is loading",
			spec:     spec,
			enabled:  true,
			result:   Result[json.RawMessage]{Status: StatusLoading, IsLoading: true},
			wantKind: statcard.KindLoading,
			want:     statcard.View{Title: statcard.LoadingTitle, Value: statcard.LoadingValue},
		},
		{
			name:     "idle enabled query is loading",
			spec:     spec,
			enabled:  true,
			result:   Result[json.RawMessage]{Status: StatusIdle},
			wantKind: statcard.KindLoading,
			want:     statcard.View{Title: statcard.LoadingTitle, Value: statcard.LoadingValue},
		},
		{
			name:     "ready with secondary value",
			spec:     spec,
			enabled:  true,
			result:   Result[json.RawMessage]{Status: StatusSuccess, HasData: true, Data: payload},
			wantKind: statcard.KindReady,
			want:     statcard.View{Title: "Insured", Value: "980", Value2: "1,204"},
		},
		{
			name:     "refetch keeps showing data",
			spec:     CardSpec{Title: "Total", Field: "total"},
			enabled:  true,
			result:   Result[json.RawMessage]{Status: StatusLoading, IsFetching: true, HasData: true, Data: payload},
			wantKind: statcard.KindReady,
			want:     statcard.View{Title: "Total", Value: "1,204"},
		},
		{
			name:     "missing field is an error",
			spec:     CardSpec{Title: "Deaths", Field: "deaths"},
			enabled:  true,
			result:   Result[json.RawMessage]{Status: StatusSuccess, HasData: true, Data: payload},
			wantKind: statcard.KindError,
		},
		{
			name:     "list payload counts rows",
			spec:     CardSpec{Title: "Hospitals"},
			enabled:  true,
			result:   Result[json.RawMessage]{Status: StatusSuccess, HasData: true, Data: json.RawMessage(`[{}, {}, {}]`)},
			wantKind: statcard.KindReady,
			want:     statcard.View{Title: "Hospitals", Value: "3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := statcard.Present(statcard.Resolve(cardProps(tt.spec, tt.enabled, tt.result)))

			if view.Kind != tt.wantKind {
				t.Fatalf("Kind = %v, want %v (view %+v)", view.Kind, tt.wantKind, view)
			}
			switch tt.wantKind {
			case statcard.KindError:
				if view.Message == "" {
					t.Error("Message should be set for error cards")
				}
				if tt.want.Message != "" && view.Message != tt.want.Message {
					t.Errorf("Message = %q, want %q", view.Message, tt.want.Message)
				}
			default:
				if view.Title != tt.want.Title || view.Value != tt.want.Value || view.Value2 != tt.want.Value2 {
					t.Errorf("view = %+v, want %+v", view, tt.want)
				}
			}
		})
	}
}

func TestDashboard_GroupCardsByQueryKey(t *testing.T) {
	client, err := New("http://localhost", WithGCInterval(0))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()

	d, err := NewDashboard(client, WithCards(
		nhiaCard("total", "total"),
		CardSpec{ID: "hospitals", Resource: ResourceHospitals},
		nhiaCard("insured", "insured"),
	))
	if err != nil {
		t.Fatalf("NewDashboard() error = %v", err)
	}

	groups := d.groupCards()
	if len(groups) != 2 {
		t.Fatalf("groupCards() = %d groups, want 2", len(groups))
	}
	if got := groups[0].cards; len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("first group cards = %v, want [0 2]", got)
	}
	if got := groups[1].query.Key().String(); got != `["hospitals"]` {
		t.Errorf("second group key = %s", got)
	}
}

func TestDashboard_InitialCards(t *testing.T) {
	client, err := New("http://localhost", WithGCInterval(0))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer client.Close()

	d, err := NewDashboard(client, WithCards(
		nhiaCard("cases", "total"),
		CardSpec{ID: "no-disease", Title: "Pregnancy", Resource: ResourcePregnancyStatus},
	))
	if err != nil {
		t.Fatalf("NewDashboard() error = %v", err)
	}

	loading := d.initialCard(0)
	if loading.Kind != statcard.KindLoading || loading.ID != "cases" {
		t.Errorf("initialCard(0) = %+v, want loading card", loading)
	}
	if loading.Query != `["nhia-status","Malaria","2024"]` {
		t.Errorf("Query = %q", loading.Query)
	}

	disabled := d.initialCard(1)
	if disabled.Kind != statcard.KindReady || disabled.Value != disabledValue || disabled.ID != "no-disease" {
		t.Errorf("initialCard(1) = %+v, want N/A card", disabled)
	}
}

// freePort returns a port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

type cardJSON struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Value string `json:"value"`
	HTML  string `json:"html"`
}

func getCards(url string) ([]cardJSON, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var cards []cardJSON
	if err := json.NewDecoder(resp.Body).Decode(&cards); err != nil {
		return nil, err
	}
	return cards, nil
}

func TestDashboard_Start_ServesCards(t *testing.T) {
	var nhiaCalls, hospitalCalls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/analytics/nhia-status/"):
			nhiaCalls.Add(1)
			_, _ = io.WriteString(w, `{"total": 1204, "insured": 980}`)
		case r.URL.Path == "/api/hospitals/":
			hospitalCalls.Add(1)
			_, _ = io.WriteString(w, `[{"id": 1, "name": "Korle Bu"}, {"id": 2, "name": "Ridge"}]`)
		default:
			http.NotFound(w, r)
		}
	})

	port := freePort(t)
	d, err := NewDashboard(client,
		WithCards(
			nhiaCard("total", "total"),
			nhiaCard("insured", "insured"),
			CardSpec{ID: "hospitals", Title: "Hospitals", Resource: ResourceHospitals},
			CardSpec{ID: "pregnancy", Title: "Pregnancy", Resource: ResourcePregnancyStatus},
		),
		WithPort(port),
		WithRefreshInterval(0),
		WithTitle("Malaria Surveillance"),
		WithDashboardLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("NewDashboard() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Start(ctx)
	}()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	want := map[string]string{
		"total":     "1,204",
		"insured":   "980",
		"hospitals": "2",
		"pregnancy": "N/A",
	}

	deadline := time.After(5 * time.Second)
	for {
		cards, err := getCards(base + "/api/cards")
		if err == nil && cardsMatch(cards, want) {
			if cards[0].ID != "total" || cards[3].ID != "pregnancy" {
				t.Errorf("cards out of configuration order: %+v", cards)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("cards never settled: %+v (err %v)", cards, err)
		case <-time.After(20 * time.Millisecond):
		}
	}

	if hospitalCalls.Load() != 1 {
		t.Errorf("hospital requests = %d, want 1", hospitalCalls.Load())
	}
	if nhiaCalls.Load() == 0 {
		t.Error("nhia-status was never requested")
	}

	resp, err := http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(body), "carepulse_api_requests_total") {
		t.Errorf("/metrics missing request counter: %s", body)
	}

	resp, err = http.Get(base + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(body), "Malaria Surveillance") {
		t.Error("dashboard page missing title")
	}
	if !strings.Contains(string(body), `data-card-id="hospitals"`) {
		t.Error("dashboard page missing server-rendered cards")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
}

func cardsMatch(cards []cardJSON, want map[string]string) bool {
	if len(cards) != len(want) {
		return false
	}
	for _, c := range cards {
		if c.Kind != string(statcard.KindReady) || c.Value != want[c.ID] {
			return false
		}
	}
	return true
}

func TestDashboard_Start_ShowsErrors(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, jsonHandler(&calls, http.StatusNotFound, `{"message": "Disease not tracked"}`))

	port := freePort(t)
	d, err := NewDashboard(client,
		WithCards(nhiaCard("cases", "total")),
		WithPort(port),
		WithRefreshInterval(0),
		WithDashboardLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("NewDashboard() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Start(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/cards", port)
	deadline := time.After(5 * time.Second)
	for {
		cards, err := getCards(url)
		if err == nil && len(cards) == 1 && cards[0].Kind == string(statcard.KindError) {
			if !strings.Contains(cards[0].HTML, "Disease not tracked") {
				t.Errorf("error card HTML = %s, want server message", cards[0].HTML)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("error card never shown: %+v (err %v)", cards, err)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestDashboard_Start_ReturnsImmediatelyIfContextAlreadyCancelled(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, jsonHandler(&calls, http.StatusOK, `{}`))

	d, err := NewDashboard(client, WithCards(nhiaCard("cases", "total")), WithPort(freePort(t)), WithDashboardLogger(testLogger()))
	if err != nil {
		t.Fatalf("NewDashboard() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- d.Start(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return with already-cancelled context")
	}
	if calls.Load() != 0 {
		t.Errorf("requests = %d, want 0", calls.Load())
	}
}

func TestDashboard_Start_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer func() { _ = ln.Close() }()

	var calls atomic.Int32
	client, _ := newTestClient(t, jsonHandler(&calls, http.StatusOK, `{"total": 1}`))

	d, err := NewDashboard(client,
		WithCards(nhiaCard("cases", "total")),
		WithPort(ln.Addr().(*net.TCPAddr).Port),
		WithDashboardLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("NewDashboard() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- d.Start(context.Background())
	}()

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "failed to start HTTP server") {
			t.Errorf("Start() error = %v, want HTTP server error", err)
		}
		if errors.Is(err, context.Canceled) {
			t.Error("bind failure should not be reported as cancellation")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after bind failure")
	}
}
