// Package config handles configuration loading for herald.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${HERALD_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	dispatch:
//	  interval: "1m"
//	poll:
//	  interval: "2m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  public_url: "https://herald.example.com"   # webhook callback base
//
// Database:
//
//	database:
//	  path: "/var/lib/herald/herald.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${HERALD_JWT_SECRET}"
//
// Gateway (upstream messaging provider):
//
//	gateway:
//	  base_url: "https://gate.example.com"
//	  partner_token: "${GATEWAY_PARTNER_TOKEN}"
//	  project_id: "proj_01"
//	  webhook_token: "${GATEWAY_WEBHOOK_TOKEN}"
//	  timeout: "15s"
//
// Connection orchestration:
//
//	connect:
//	  pairing_min_age: "60s"   # channel warm-up before pairing codes work
//	  pairing_wait_max: "10s"  # longest we block a connect call waiting
//	  retry_max: 2
//	  retry_base: "2s"
//
// Dispatch and polling:
//
//	dispatch:
//	  interval: "1m"
//	  batch_size: 10
//	poll:
//	  interval: "2m"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/herald/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
