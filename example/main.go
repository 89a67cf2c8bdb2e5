package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/carepulse"
	"github.com/jpalmerr/carepulse/example/mockapi"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// start mock analytics API (see mockapi)
	api := mockapi.New(mockapi.Options{MinLatency: 50 * time.Millisecond, MaxLatency: 200 * time.Millisecond})
	go func() {
		if err := http.ListenAndServe(":9999", http.StripPrefix("/api", api)); err != nil {
			logger.Error("mock api error", "error", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	client, err := carepulse.New("http://localhost:9999/api/", carepulse.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	// grid: 2 diseases x 2 years = 4 cards from one declaration
	grid, err := carepulse.NewCardGrid(carepulse.CardSpec{
		ID:          "nhia",
		Title:       "Insured ({{.disease}} {{.year}})",
		Description: "NHIA-insured cases of all recorded",
		Icon:        "🏥",
		Resource:    carepulse.ResourceNHIAStatus,
		Field:       "insured",
		Field2:      "total",
	},
		carepulse.WithDimensions(map[string][]string{
			"disease": {"Malaria", "Typhoid"},
			"year":    {"2023", "2024"},
		}),
		carepulse.WithDimensionParams("disease", "disease_name"),
	)
	if err != nil {
		logger.Error("failed to create card grid", "error", err)
		os.Exit(1)
	}

	cards := []carepulse.CardSpec{
		{ID: "hospitals", Title: "Hospitals", Icon: "🏨", Resource: carepulse.ResourceHospitals, Description: "Facilities reporting"},
		{
			ID:          "malaria-female",
			Title:       "Female Malaria Cases",
			Icon:        "♀",
			Resource:    carepulse.ResourceSexDistribution,
			Params:      map[string]string{"disease": "Malaria", "year": "2024", "orgname": "Ridge Hospital"},
			Field:       "female",
			Description: "Ridge Hospital, 2024",
		},
		{
			// no record in the mock: shows an error card
			ID:       "measles",
			Title:    "Measles",
			Resource: carepulse.ResourceNHIAStatus,
			Params:   map[string]string{"disease_name": "Measles"},
			Field:    "total",
		},
		{
			// missing disease_name: disabled, shows N/A
			ID:       "pregnancy",
			Title:    "Pregnant Patients",
			Resource: carepulse.ResourcePregnancyStatus,
		},
	}

	d, err := carepulse.NewDashboard(client,
		carepulse.WithCards(cards...),
		carepulse.WithCards(grid...),
		carepulse.WithTitle("CarePulse Demo"),
		carepulse.WithRefreshInterval(15*time.Second),
		carepulse.WithPort(8080),
	)
	if err != nil {
		logger.Error("failed to create dashboard", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   CarePulse Demo                                      ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Open http://localhost:8080 in your browser          ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Cards:                                              ║")
	fmt.Println("  ║   • 4 NHIA (2 diseases × 2 years via Grid)            ║")
	fmt.Println("  ║   • hospitals, sex split, an error and a disabled one ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Start(ctx); err != nil {
		logger.Error("dashboard error", "error", err)
		os.Exit(1)
	}
}
