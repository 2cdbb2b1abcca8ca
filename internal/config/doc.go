// Package config loads the fleetward server configuration from YAML.
//
// # Format
//
// The configuration file uses YAML with ${VAR} environment variable
// expansion applied before parsing:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
//	database:
//	  path: "/var/lib/fleetward/fleetward.db"
//
//	fleet:
//	  key: "${FLEET_KEY}"
//
//	operator:
//	  jwt_secret: "${JWT_SECRET}"
//	  user: "admin"
//	  password_hash: "$2a$10$..."   # bcrypt; or plain `password:`
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// Load validates required fields and returns the first failure. The agent
// binary has its own, much smaller configuration; see internal/agent.
package config
