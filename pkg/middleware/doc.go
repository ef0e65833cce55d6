// Package middleware provides HTTP middleware for the tapas live server.
//
// This package includes:
//   - OpenTelemetry tracing middleware
//   - Prometheus request metrics middleware
//
// # OpenTelemetry Middleware
//
// The OpenTelemetry middleware starts a server span for every request.
// Spans are named after the chi route pattern once the route is known.
//
//	r := chi.NewRouter()
//	r.Use(middleware.OpenTelemetry(
//	    middleware.WithTracerName("my-app"),
//	    middleware.WithRequestFilter(func(r *http.Request) bool {
//	        return r.URL.Path != "/healthz"
//	    }),
//	))
//
// # Prometheus Metrics
//
// The Prometheus middleware collects:
//   - tapas_http_requests_total: requests by route, method and status class
//   - tapas_http_request_duration_seconds: request duration histogram
//   - tapas_http_requests_in_flight: requests being served
//
//	reg := prometheus.NewRegistry()
//	r.Use(middleware.Prometheus(middleware.WithRegistry(reg)))
//	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package middleware
