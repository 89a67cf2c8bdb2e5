// Package carepulse provides typed, cached queries against a healthcare
// analytics API and an embeddable dashboard of stat cards built on them.
//
// # Quick Start
//
// Create a client, bind a query and read it:
//
//	client, _ := carepulse.New("https://analytics.example.org/api/")
//	defer client.Close()
//
//	r := client.Hospitals().Fetch(ctx)
//	if r.Err != nil {
//	    return r.Err
//	}
//	for _, h := range r.Data {
//	    fmt.Println(h.Name)
//	}
//
// # Queries
//
// Every query is identified by a [QueryKey]: the resource name plus its
// parameter values in declaration order. Results are cached per key and
// governed by the resource's tier ([TierReference], [TierScoped],
// [TierAnalytics]), which sets the stale time and the retention of unused
// entries. Concurrent loads of one key share a single request, and a failed
// request is retried once after the retry delay.
//
// A query whose required parameters are missing is disabled: it never makes
// a request and reports [StatusIdle].
//
// Three ways to read a query:
//
//   - [Query.Fetch] blocks until the result is fresh or the load settles
//   - [Query.Use] returns the cached result at once, loading in the background
//   - [Query.Observe] streams every change of the cached result
//
// # Dashboard
//
// A [Dashboard] binds stat cards to queries and serves them live:
//
//	d, err := carepulse.NewDashboard(client,
//	    carepulse.WithCards(carepulse.CardSpec{
//	        ID:       "hospitals",
//	        Title:    "Hospitals",
//	        Resource: carepulse.ResourceHospitals,
//	    }),
//	    carepulse.WithPort(9090),
//	)
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	d.Start(ctx) // blocks until context is cancelled
//
// [NewCardGrid] expands one card spec across dimensions, e.g. one card per
// disease and year.
//
// # Architecture
//
// CarePulse consists of several internal packages (under internal/):
//
//   - internal/transport: HTTP GET with request IDs and response capture
//   - internal/querycache: Keyed result cache with dedup, staleness and GC
//   - internal/refresh: Periodic refresh with a bounded worker pool
//   - internal/store: In-memory card storage with pub/sub
//   - internal/server: HTTP server with REST API and Server-Sent Events
//
// and two public ones: statcard, the stat card component, and dashboard,
// the embedded web UI assets.
//
// The internal packages are not part of the public API and may change
// without notice.
package carepulse
