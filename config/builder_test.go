package config

import (
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/carepulse"
)

func TestBuildCards_SingleCard(t *testing.T) {
	cfg := &Config{
		Cards: []CardConfig{
			{
				ID:       "malaria-insured",
				Title:    "Insured",
				Icon:     "🏥",
				Resource: "nhia-status",
				Params:   map[string]string{"disease_name": "Malaria", "year": "2024"},
				Field:    "insured",
				Field2:   "total",
			},
		},
	}

	cards, err := BuildCards(cfg)
	if err != nil {
		t.Fatalf("BuildCards() error = %v", err)
	}

	if len(cards) != 1 {
		t.Fatalf("len(cards) = %d, want 1", len(cards))
	}

	want := carepulse.CardSpec{
		ID:       "malaria-insured",
		Title:    "Insured",
		Icon:     "🏥",
		Resource: carepulse.ResourceNHIAStatus,
		Params:   map[string]string{"disease_name": "Malaria", "year": "2024"},
		Field:    "insured",
		Field2:   "total",
	}
	if !reflect.DeepEqual(cards[0], want) {
		t.Errorf("card = %+v, want %+v", cards[0], want)
	}
}

func TestBuildCards_DoesNotShareParams(t *testing.T) {
	cfg := &Config{
		Cards: []CardConfig{
			{ID: "nhia", Resource: "nhia-status", Params: map[string]string{"disease_name": "Malaria"}},
		},
	}

	cards, err := BuildCards(cfg)
	if err != nil {
		t.Fatalf("BuildCards() error = %v", err)
	}

	cards[0].Params["disease_name"] = "Typhoid"
	if cfg.Cards[0].Params["disease_name"] != "Malaria" {
		t.Error("modifying built card params should not affect config")
	}
}

func TestBuildCards_Grid(t *testing.T) {
	cfg := &Config{
		CardGrids: []GridConfig{
			{
				CardConfig: CardConfig{
					ID:       "nhia",
					Title:    "Insured ({{.disease}} {{.year}})",
					Resource: "nhia-status",
					Field:    "insured",
				},
				Dimensions: map[string][]string{
					"disease": {"Malaria", "Typhoid"},
					"year":    {"2023", "2024"},
				},
				DimensionParams: map[string]string{"disease": "disease_name"},
			},
		},
	}

	cards, err := BuildCards(cfg)
	if err != nil {
		t.Fatalf("BuildCards() error = %v", err)
	}

	// 2 diseases * 2 years = 4 cards
	if len(cards) != 4 {
		t.Fatalf("len(cards) = %d, want 4", len(cards))
	}

	byID := make(map[string]carepulse.CardSpec, len(cards))
	for _, c := range cards {
		byID[c.ID] = c
	}

	c, ok := byID["nhia-typhoid-2023"]
	if !ok {
		t.Fatalf("missing card nhia-typhoid-2023 in %v", byID)
	}
	if c.Title != "Insured (Typhoid 2023)" {
		t.Errorf("Title = %q", c.Title)
	}
	if c.Params["disease_name"] != "Typhoid" || c.Params["year"] != "2023" {
		t.Errorf("Params = %v", c.Params)
	}
	if c.Field != "insured" || c.Resource != carepulse.ResourceNHIAStatus {
		t.Errorf("card = %+v", c)
	}
}

func TestBuildCards_CardsBeforeGrids(t *testing.T) {
	cfg := &Config{
		Cards: []CardConfig{
			{ID: "hospitals", Resource: "hospitals"},
		},
		CardGrids: []GridConfig{
			{
				CardConfig: CardConfig{ID: "pregnancy", Title: "Pregnancy", Resource: "pregnancy-status"},
				Dimensions: map[string][]string{"disease_name": {"Malaria"}},
			},
		},
	}

	cards, err := BuildCards(cfg)
	if err != nil {
		t.Fatalf("BuildCards() error = %v", err)
	}

	var ids []string
	for _, c := range cards {
		ids = append(ids, c.ID)
	}
	want := []string{"hospitals", "pregnancy-malaria"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
}

func TestBuildCards_GridTemplateError(t *testing.T) {
	cfg := &Config{
		CardGrids: []GridConfig{
			{
				CardConfig: CardConfig{ID: "nhia", Title: "{{.missing}}", Resource: "nhia-status"},
				Dimensions: map[string][]string{"disease_name": {"Malaria"}},
			},
		},
	}

	_, err := BuildCards(cfg)
	if err == nil {
		t.Fatal("BuildCards() expected error for missing template key, got nil")
	}
	if !strings.Contains(err.Error(), "template") {
		t.Errorf("error = %q, want template error", err.Error())
	}
}

func TestBuildCards_FromParsedConfig(t *testing.T) {
	yaml := apiSection + `
cards:
  - id: hospitals
    title: Hospitals
    resource: hospitals
card_grids:
  - id: nhia
    resource: nhia-status
    title: NHIA
    field: insured
    params:
      year: "2024"
    dimensions:
      disease_name: [Malaria, Typhoid]
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	cards, err := BuildCards(cfg)
	if err != nil {
		t.Fatalf("BuildCards() error = %v", err)
	}
	if len(cards) != 3 {
		t.Fatalf("len(cards) = %d, want 3", len(cards))
	}

	client, err := NewClient(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer client.Close()

	if _, err := carepulse.NewDashboard(client, DashboardOptions(cfg, cards, nil)...); err != nil {
		t.Fatalf("NewDashboard() error = %v", err)
	}

	for _, c := range cards[1:] {
		q, err := client.Query(c.Resource, c.Params)
		if err != nil {
			t.Fatalf("Query(%s) error = %v", c.ID, err)
		}
		if !q.Enabled() {
			t.Errorf("card %s query should be enabled", c.ID)
		}
	}
}

func TestClientOptions(t *testing.T) {
	delay := Duration(0)
	cfg := &Config{
		API: APIConfig{
			BaseURL:    "https://analytics.example.org/api/",
			Timeout:    Duration(3 * time.Second),
			RetryDelay: &delay,
			Headers:    map[string]string{"Authorization": "Bearer t", "X-Site": "accra"},
		},
	}

	tests := []struct {
		name   string
		logger *slog.Logger
		want   int
	}{
		{"without logger", nil, 3},
		{"with logger", slog.New(slog.NewTextHandler(io.Discard, nil)), 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := ClientOptions(cfg, tt.logger)
			if len(opts) != tt.want {
				t.Errorf("len(opts) = %d, want %d", len(opts), tt.want)
			}

			client, err := carepulse.New(cfg.API.BaseURL, opts...)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			client.Close()
		})
	}
}

func TestClientOptions_Empty(t *testing.T) {
	cfg := &Config{API: APIConfig{BaseURL: "https://analytics.example.org/api/"}}
	if opts := ClientOptions(cfg, nil); len(opts) != 0 {
		t.Errorf("len(opts) = %d, want 0", len(opts))
	}
}

func TestDashboardOptions(t *testing.T) {
	cards := []carepulse.CardSpec{{ID: "hospitals", Resource: carepulse.ResourceHospitals}}

	tests := []struct {
		name string
		cfg  *Config
		want int
	}{
		{"defaults only", &Config{Port: 8080}, 3},
		{"title", &Config{Port: 8080, Title: "Ward 4"}, 4},
		{"title and concurrency", &Config{Port: 8080, Title: "Ward 4", MaxConcurrency: 2}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DashboardOptions(tt.cfg, cards, nil)
			if len(opts) != tt.want {
				t.Errorf("len(opts) = %d, want %d", len(opts), tt.want)
			}
		})
	}
}

func TestMapToKeyValuePairs(t *testing.T) {
	got := mapToKeyValuePairs(map[string]string{"b": "2", "a": "1", "c": "3"})
	want := []string{"a", "1", "b", "2", "c", "3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("mapToKeyValuePairs() = %v, want %v", got, want)
	}
}
