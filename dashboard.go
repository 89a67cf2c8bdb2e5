package carepulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/carepulse/dashboard"
	"github.com/jpalmerr/carepulse/internal/refresh"
	"github.com/jpalmerr/carepulse/internal/server"
	"github.com/jpalmerr/carepulse/internal/store"
	"github.com/jpalmerr/carepulse/statcard"
)

const (
	defaultPort            = 8080
	defaultMaxConcurrency  = 10
	defaultRefreshInterval = 5 * time.Minute

	// disabledValue is shown by cards whose query lacks a required parameter.
	disabledValue = "N/A"
)

// CardSpec describes one stat card: the query feeding it and which part of
// the payload it shows.
type CardSpec struct {
	// ID identifies the card on the dashboard. Must be unique.
	ID string

	Title       string
	Description string
	Icon        string

	// Resource names the query resource, e.g. [ResourceNHIAStatus].
	Resource string

	// Params are the query parameters by name. Cards with missing required
	// parameters are shown as "N/A" and never fetched.
	Params map[string]string

	// Field is the dot path of the card value in the payload; see [ValueAt].
	// Empty uses the whole payload.
	Field string

	// Field2 is the dot path of the optional secondary value.
	Field2 string
}

// Dashboard serves a live page of stat cards backed by a [Client].
//
// Every card is bound to a query. Cards sharing a query key share one cache
// entry, so a dashboard showing several fields of one endpoint makes one
// request. Queries are fetched once on start and then every refresh
// interval; fresh results are served from the cache, stale ones reload.
//
// The typical lifecycle is:
//
//	client, err := carepulse.New("https://analytics.example.org/api/")
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	d, err := carepulse.NewDashboard(client, carepulse.WithCards(cards...))
//	if err != nil {
//	    return err
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	d.Start(ctx) // blocks until context cancelled
type Dashboard struct {
	client          *Client
	title           string
	cards           []CardSpec
	queries         []Query[json.RawMessage]
	port            int
	maxConcurrency  int
	refreshInterval time.Duration
	logger          *slog.Logger
}

// NewDashboard creates a [Dashboard] for client with the given options.
//
// At least one card must be configured via [WithCards]. Other options have
// sensible defaults:
//   - Port: 8080
//   - Max concurrency: 10
//   - Refresh interval: 5 minutes
//
// Returns an error if no cards are configured, card IDs repeat, a card names
// an unknown resource or parameter, or an option is invalid.
func NewDashboard(client *Client, opts ...DashboardOption) (*Dashboard, error) {
	if client == nil {
		return nil, errors.New("client is required")
	}

	cfg := &dashboardConfig{
		port:            defaultPort,
		maxConcurrency:  defaultMaxConcurrency,
		refreshInterval: defaultRefreshInterval,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if len(cfg.cards) == 0 {
		return nil, errors.New("at least one card is required")
	}

	seen := make(map[string]bool, len(cfg.cards))
	queries := make([]Query[json.RawMessage], len(cfg.cards))
	for i, card := range cfg.cards {
		if card.ID == "" {
			return nil, fmt.Errorf("card %d: ID is required", i)
		}
		if seen[card.ID] {
			return nil, fmt.Errorf("duplicate card ID: %q", card.ID)
		}
		seen[card.ID] = true

		q, err := client.Query(card.Resource, card.Params)
		if err != nil {
			return nil, fmt.Errorf("card %q: %w", card.ID, err)
		}
		queries[i] = q
	}

	if cfg.port < 1 || cfg.port > 65535 {
		return nil, fmt.Errorf("port must be between 1 and 65535, got %d", cfg.port)
	}

	logger := cfg.logger
	if logger == nil {
		logger = client.logger
	}

	return &Dashboard{
		client:          client,
		title:           cfg.title,
		cards:           cfg.cards,
		queries:         queries,
		port:            cfg.port,
		maxConcurrency:  cfg.maxConcurrency,
		refreshInterval: cfg.refreshInterval,
		logger:          logger,
	}, nil
}

// Cards returns a copy of the configured cards.
func (d *Dashboard) Cards() []CardSpec {
	cp := make([]CardSpec, len(d.cards))
	copy(cp, d.cards)
	return cp
}

// Port returns the configured HTTP port for the dashboard server.
func (d *Dashboard) Port() int {
	return d.port
}

// RefreshInterval returns the configured interval between refresh rounds.
func (d *Dashboard) RefreshInterval() time.Duration {
	return d.refreshInterval
}

// cardGroup is the set of cards fed by one query key.
type cardGroup struct {
	query Query[json.RawMessage]
	cards []int
}

// Start fetches the card queries and serves the dashboard.
//
// Start is a blocking call that runs until the provided context is cancelled.
// During execution:
//
//   - Every card is shown as loading, or as "N/A" when its query is disabled
//   - Each distinct query is observed; its results update the cards it feeds
//   - Queries are fetched immediately, then at the refresh interval
//   - The HTTP server starts on the configured port with metrics at /metrics
//
// Returns nil on graceful shutdown. Returns an error if the HTTP server fails
// to start.
func (d *Dashboard) Start(ctx context.Context) error {
	d.logger.Info("dashboard starting", "card_count", len(d.cards), "base_url", d.client.BaseURL())
	d.logger.Info("refresh configured", "interval", d.refreshInterval.String())
	d.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", d.port))

	// check if context already cancelled
	if ctx.Err() != nil {
		return nil
	}

	// observers and the scheduler run on runCtx so a failed server start
	// can stop them
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cardStore := store.NewMemoryStore()
	groups := d.groupCards()

	for i := range d.cards {
		cardStore.Update(d.initialCard(i))
	}

	var wg sync.WaitGroup
	jobs := make([]refresh.Job, 0, len(groups))
	for _, g := range groups {
		if !g.query.Enabled() {
			continue
		}

		results := g.query.Observe(runCtx)
		wg.Add(1)
		go func(g cardGroup) {
			defer wg.Done()
			for r := range results {
				for _, i := range g.cards {
					cardStore.Update(d.cardFromResult(i, r))
				}
			}
		}(g)

		q := g.query
		jobs = append(jobs, refresh.Job{
			Name: q.Key().String(),
			Run: func(ctx context.Context) error {
				return q.Fetch(ctx).Err
			},
		})
	}

	scheduler := refresh.NewScheduler(jobs, d.refreshInterval, d.maxConcurrency, d.client.clock, d.logger)
	scheduler.Start(runCtx)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for outcome := range scheduler.Outcomes() {
			logAttrs := []any{
				"query", outcome.Name,
				"duration_ms", outcome.Duration.Milliseconds(),
			}
			if outcome.Err != nil && !errors.Is(outcome.Err, context.Canceled) {
				d.logger.Warn("refresh completed with error", append(logAttrs, "error", outcome.Err.Error())...)
			} else {
				d.logger.Debug("refresh completed", logAttrs...)
			}
		}
	}()

	cleanup := func() {
		cancel()
		scheduler.Stop() // closes outcomes
		wg.Wait()
	}

	metrics := promhttp.HandlerFor(d.client.MetricsGatherer(), promhttp.HandlerOpts{})
	httpServer := server.NewServer(cardStore, d.port, dashboard.Assets, d.title, metrics, d.logger)
	if err := httpServer.Start(ctx); err != nil {
		cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	<-ctx.Done()
	cleanup()
	d.logger.Info("dashboard stopped")
	return nil
}

// groupCards groups cards by query key, in order of first appearance.
func (d *Dashboard) groupCards() []cardGroup {
	index := make(map[string]int)
	var groups []cardGroup
	for i, q := range d.queries {
		key := q.Key().String()
		gi, ok := index[key]
		if !ok {
			gi = len(groups)
			index[key] = gi
			groups = append(groups, cardGroup{query: q})
		}
		groups[gi].cards = append(groups[gi].cards, i)
	}
	return groups
}

// initialCard is the card shown before its query reports.
func (d *Dashboard) initialCard(i int) store.Card {
	if !d.queries[i].Enabled() {
		return d.cardFromResult(i, idleResult[json.RawMessage]())
	}
	return d.cardFromResult(i, Result[json.RawMessage]{Status: StatusLoading, IsLoading: true})
}

// cardFromResult renders card i for a query result.
func (d *Dashboard) cardFromResult(i int, r Result[json.RawMessage]) store.Card {
	spec := d.cards[i]
	view := statcard.Present(statcard.Resolve(cardProps(spec, d.queries[i].Enabled(), r)))
	view.ID = spec.ID
	return store.Card{
		View:      view,
		Query:     d.queries[i].Key().String(),
		UpdatedAt: d.client.clock.Now(),
	}
}

// cardProps maps a query result onto card props. Errors win, disabled
// queries show a neutral value and missing data shows as loading.
func cardProps(spec CardSpec, enabled bool, r Result[json.RawMessage]) statcard.Props {
	p := statcard.Props{
		Title:       spec.Title,
		Description: spec.Description,
		Icon:        spec.Icon,
	}

	switch {
	case r.Err != nil:
		p.Error = r.Err
	case !enabled:
		p.Value = disabledValue
	case !r.HasData:
		p.IsLoading = true
	default:
		v, err := ValueAt(r.Data, spec.Field)
		if err != nil {
			p.Error = err
			return p
		}
		p.Value = v
		if spec.Field2 != "" {
			v2, err := ValueAt(r.Data, spec.Field2)
			if err != nil {
				p.Error = err
				return p
			}
			p.Value2 = v2
		}
	}
	return p
}
