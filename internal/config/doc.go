// Package config handles configuration loading for research-gateway.
//
// # Configuration File
//
// Locations, in order:
//
//  1. The --config flag
//  2. Path from RESEARCH_GATEWAY_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/research-gateway/gateway.yaml (~/.config when unset)
//
// A missing file at the default location is not an error; the defaults
// apply. Files ending in .toml are decoded as TOML, anything else as YAML.
//
// # Environment Variables
//
// Values can reference environment variables:
//
//	auth:
//	  secret: "${RESEARCH_GATEWAY_SECRET}"
//
// PORT and RESEARCH_GATEWAY_SECRET also override server.port and
// auth.secret directly. The serve command's --secret flag wins over both.
//
// # Configuration Sections
//
//	server:
//	  host: ""            # all interfaces
//	  port: 3000
//
//	auth:
//	  secret: ""          # bearer secret for /v1/chat/completions
//	  jwt_secret: ""      # enables JWT auth on /api/v1
//
//	agent:
//	  endpoint: "http://127.0.0.1:3001/v1/research"
//	  dedup_bypass_attempts: 3
//
//	results:
//	  backend: "file"     # file, sqlite
//	  dir: "./tasks"
//	  path: "./tasks.db"
//
//	jobs:
//	  retention: "1h"
//	  max_jobs: 10000
//	  default_budget: 1000000
//	  progress_interval: ""   # e.g. "5s" for heartbeat progress events
//
//	tailscale:
//	  enabled: false
//	  hostname: "research-gateway"
//	  auth_key: "${TS_AUTHKEY}"
//
//	logging:
//	  level: "info"       # debug, info, warn, error
//	  format: "text"      # text, json
package config
