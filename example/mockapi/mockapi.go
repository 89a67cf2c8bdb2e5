// Package mockapi serves a small, drifting copy of the healthcare analytics
// API for demos and manual testing.
//
// Counts grow a little on every request so the dashboard visibly updates.
// Requests for diseases without records fail with 404 and a JSON detail,
// which shows up as an error card.
package mockapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Hospital is a hospital record.
type Hospital struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Locality is a locality served by a hospital.
type Locality struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Hospital int    `json:"hospital"`
}

var hospitals = []Hospital{
	{ID: 1, Name: "Korle Bu Teaching Hospital"},
	{ID: 2, Name: "Ridge Hospital"},
	{ID: 3, Name: "Komfo Anokye Teaching Hospital"},
	{ID: 4, Name: "Tamale Teaching Hospital"},
}

var localities = []Locality{
	{ID: 1, Name: "Korle Gonno", Hospital: 1},
	{ID: 2, Name: "Mamprobi", Hospital: 1},
	{ID: 3, Name: "Osu", Hospital: 2},
	{ID: 4, Name: "Adabraka", Hospital: 2},
	{ID: 5, Name: "Bantama", Hospital: 3},
	{ID: 6, Name: "Sagnarigu", Hospital: 4},
}

// diseases maps tracked diseases to their ICD-10 code and base case count.
var diseases = map[string]struct {
	code  string
	name  string
	cases int
}{
	"Malaria":  {code: "B54", name: "Unspecified malaria", cases: 12840},
	"Typhoid":  {code: "A01.0", name: "Typhoid fever", cases: 3120},
	"Cholera":  {code: "A00.9", name: "Cholera, unspecified", cases: 410},
	"COVID-19": {code: "U07.1", name: "COVID-19, virus identified", cases: 2275},
}

// Options configures the mock API.
type Options struct {
	// Latency bounds the simulated response delay. Zero disables it.
	MinLatency, MaxLatency time.Duration

	// Seed makes the drift reproducible. Zero uses the current time.
	Seed int64

	Logger *slog.Logger
}

// API is the mock analytics API handler.
type API struct {
	mu     sync.Mutex
	rng    *rand.Rand
	drift  map[string]int
	opts   Options
	logger *slog.Logger
	mux    *http.ServeMux
}

// New creates a mock API. Mount it under a prefix with http.StripPrefix,
// e.g. "/api/".
func New(opts Options) *API {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &API{
		rng:    rand.New(rand.NewSource(seed)),
		drift:  make(map[string]int),
		opts:   opts,
		logger: logger,
		mux:    http.NewServeMux(),
	}

	a.mux.HandleFunc("/hospitals/", a.handleHospitals)
	a.mux.HandleFunc("/hospital-localities/by-hospital/", a.handleLocalities)
	a.mux.HandleFunc("/analytics/nhia-status/", a.statusHandler("insured", "uninsured", 0.72))
	a.mux.HandleFunc("/analytics/pregnancy-status/", a.statusHandler("pregnant", "not_pregnant", 0.08))
	a.mux.HandleFunc("/analytics/principal-diagnoses/", a.handleDiagnoses(1.0))
	a.mux.HandleFunc("/analytics/additional-diagnoses/", a.handleDiagnoses(0.35))
	a.mux.HandleFunc("/analytics/sex-distribution/", a.handleSexDistribution)
	a.mux.HandleFunc("/analytics/age-distribution/", a.handleAgeDistribution)
	a.mux.HandleFunc("/analytics/trends/", a.handleTrends)
	return a
}

// ServeHTTP implements http.Handler.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "message", "Method not allowed")
		return
	}
	a.logger.Debug("mock request", "path", r.URL.Path, "query", r.URL.RawQuery)
	a.sleep()
	a.mux.ServeHTTP(w, r)
}

func (a *API) sleep() {
	if a.opts.MaxLatency <= 0 {
		return
	}
	a.mu.Lock()
	spread := a.opts.MaxLatency - a.opts.MinLatency
	d := a.opts.MinLatency
	if spread > 0 {
		d += time.Duration(a.rng.Int63n(int64(spread)))
	}
	a.mu.Unlock()
	time.Sleep(d)
}

// grow returns base plus a per-key count that rises on every call.
func (a *API) grow(key string, base int) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.drift[key] += a.rng.Intn(5)
	return base + a.drift[key]
}

func (a *API) handleHospitals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, hospitals)
}

func (a *API) handleLocalities(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.URL.Query().Get("hospital"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "detail", "hospital must be an integer")
		return
	}
	out := []Locality{}
	for _, l := range localities {
		if l.Hospital == id {
			out = append(out, l)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// statusHandler serves a yes/no split of a disease's cases.
func (a *API) statusHandler(yes, no string, share float64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		name := q.Get("disease_name")
		d, ok := diseases[name]
		if !ok {
			writeError(w, http.StatusNotFound, "detail", fmt.Sprintf("No records for disease %q", name))
			return
		}
		total := a.grow(r.URL.Path+name+q.Get("year"), d.cases)
		y := int(float64(total) * share)
		writeJSON(w, http.StatusOK, map[string]any{
			"disease": name,
			"year":    q.Get("year"),
			yes:       y,
			no:        total - y,
			"total":   total,
		})
	}
}

// filter reads the disease, year and orgname parameters.
func filter(w http.ResponseWriter, r *http.Request, extra ...string) (string, int, bool) {
	q := r.URL.Query()
	for _, name := range append([]string{"disease", "year", "orgname"}, extra...) {
		if q.Get(name) == "" {
			writeError(w, http.StatusBadRequest, "detail", name+" is required")
			return "", 0, false
		}
	}
	d, ok := diseases[q.Get("disease")]
	if !ok {
		writeError(w, http.StatusNotFound, "detail", fmt.Sprintf("No records for disease %q", q.Get("disease")))
		return "", 0, false
	}
	return q.Get("disease"), d.cases, true
}

func (a *API) handleDiagnoses(share float64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, cases, ok := filter(w, r)
		if !ok {
			return
		}
		d := diseases[name]
		count := a.grow(r.URL.String(), int(float64(cases)*share))
		writeJSON(w, http.StatusOK, map[string]any{
			"count": count,
			"top": []map[string]any{
				{"code": d.code, "name": d.name, "count": count},
			},
		})
	}
}

func (a *API) handleSexDistribution(w http.ResponseWriter, r *http.Request) {
	_, cases, ok := filter(w, r)
	if !ok {
		return
	}
	total := a.grow(r.URL.String(), cases)
	female := total * 53 / 100
	writeJSON(w, http.StatusOK, map[string]any{
		"male":   total - female,
		"female": female,
		"total":  total,
	})
}

func (a *API) handleAgeDistribution(w http.ResponseWriter, r *http.Request) {
	_, cases, ok := filter(w, r)
	if !ok {
		return
	}
	total := a.grow(r.URL.String(), cases)
	shares := []struct {
		label string
		pct   int
	}{{"0-4", 31}, {"5-14", 24}, {"15-49", 33}, {"50+", 12}}

	buckets := make([]map[string]any, 0, len(shares))
	left := total
	for i, s := range shares {
		n := total * s.pct / 100
		if i == len(shares)-1 {
			n = left
		}
		left -= n
		buckets = append(buckets, map[string]any{"range": s.label, "count": n})
	}
	writeJSON(w, http.StatusOK, map[string]any{"buckets": buckets, "total": total})
}

func (a *API) handleTrends(w http.ResponseWriter, r *http.Request) {
	_, cases, ok := filter(w, r, "locality")
	if !ok {
		return
	}
	year := r.URL.Query().Get("year")
	total := a.grow(r.URL.String(), cases/10)

	points := make([]map[string]any, 0, 12)
	for m := 1; m <= 12; m++ {
		// rainy season peak
		weight := 6 + 4*boolInt(m >= 5 && m <= 9)
		points = append(points, map[string]any{
			"month": fmt.Sprintf("%s-%02d", year, m),
			"count": total * weight / 84,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": points, "total": total})
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, key, msg string) {
	writeJSON(w, status, map[string]string{key: strings.TrimSpace(msg)})
}
