// Package config provides centralized configuration management for the
// SuiAgent runtime: a JSON configuration file with sensible defaults plus a
// YAML catalogue of Sui network endpoints. Values are loaded once at startup
// and passed down to components as typed sub-structs.
package config
