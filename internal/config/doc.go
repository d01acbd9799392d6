// Package config provides configuration loading for epic-crm.
//
// # Overview
//
// Configuration lives in a YAML or TOML file, chosen by extension (.toml is TOML,
// anything else YAML). The path is taken from EPIC_CRM_CONFIG, then
// $XDG_CONFIG_HOME/epic-crm/config.yaml, then ~/.config/epic-crm/config.yaml.
//
// Before parsing, a .env file beside the config file and one in the working
// directory are loaded. Neither overrides variables that are already set.
//
// # Environment Variable Expansion
//
// Any ${VAR_NAME} in the file is replaced with the environment value, or an empty
// string if unset. This keeps signing keys out of the file itself:
//
//	auth:
//	  signing_key: "${EPIC_CRM_SIGNING_KEY}"
//
// # Example
//
//	database:
//	  driver: "sqlite"          # or "sqlite3" when built with cgo
//	  path: "/var/lib/epic-crm/crm.db"
//
//	auth:
//	  signing_key: "${EPIC_CRM_SIGNING_KEY}"
//	  key_id: "2026-05"
//	  previous_signing_key: "${EPIC_CRM_PREVIOUS_SIGNING_KEY}"
//	  previous_key_id: "2026-04"
//	  access_token_ttl: "30m"
//	  refresh_token_ttl: "24h"
//	  bcrypt_cost: 10
//
//	session:
//	  path: ""                  # default: $XDG_CONFIG_HOME/epic-crm/session.json
//
//	permissions:
//	  source: "database"        # or "static"
//
//	logging:
//	  level: "info"
//	  format: "text"            # or "json"
//
// # Defaults
//
// Missing values default to driver sqlite, key id "primary", access tokens of 30
// minutes, refresh secrets of 24 hours, bcrypt cost 10, permissions from the
// database, and info-level text logging. The signing key and database path have
// no default.
package config
