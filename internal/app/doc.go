// Package app wires the RetailPulse HTTP service together: configuration,
// logging, OpenTelemetry, the analytics pipeline and the chi router.
//
// # Initialization Flow
//
//  1. Load configuration (defaults, then YAML, then RETAIL_* environment)
//  2. Initialize the JSON logger
//  3. Resolve and create the data, reports and logs directories
//  4. Initialize OpenTelemetry and the business metrics
//  5. Build the analytics service from the analytics configuration
//  6. Set up middleware, handlers and the HTTP server
//
// # Usage
//
//	application, err := app.NewApplication()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := application.Run(); err != nil {
//	    log.Fatal(err)
//	}
//
// Run blocks until SIGINT or SIGTERM, then drains in-flight requests and
// flushes telemetry. Initialization errors are returned to the caller; the
// package never calls os.Exit.
package app
