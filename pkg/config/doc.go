// Package config loads application configuration from KBFORGE_* environment
// variables and validates it before the server starts.
package config
