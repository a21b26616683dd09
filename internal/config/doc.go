// Package config provides centralized configuration management for
// RetailPulse. It loads configuration from multiple sources, validates it and
// exposes a typed struct to the rest of the application.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//  1. Environment variables (highest priority)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
//
// The file is taken from RETAIL_CONFIG_FILE, or else the first of
// config.yaml and configs/config.yaml that exists.
//
// # Environment Variables
//
// All environment variables follow the pattern RETAIL_<SECTION>_<KEY>:
//
//	RETAIL_SERVER_PORT=8080
//	RETAIL_LOGGING_LEVEL=debug
//	RETAIL_SECURITY_ALLOWED_ORIGINS=http://localhost:3000,https://dash.example.com
//	RETAIL_ANALYTICS_HISTORY_WINDOW_DAYS=28
//	RETAIL_ANALYTICS_ELASTICITIES=Toys:2.2,Garden:1.3
//
// # Analytics Tunables
//
// The analytics section holds the constants of the KPI and campaign models:
// the historical window the sales data is assumed to span, the type
// detection thresholds, promotion and fulfillment cost rates, the default
// reorder point and the category elasticity table. Extra column aliases can
// be declared in YAML:
//
//	analytics:
//	  column_aliases:
//	    quantity: [pieces, qty_sold]
//	    city: [emirate]
package config
