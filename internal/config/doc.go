// Package config loads, normalizes, and validates teanga configuration data.
//
// It supplies repository defaults (including the stock Raidió na Gaeltachta
// feed table), expands user paths (including tilde shortcuts), reads TOML
// files, and honours environment fallbacks such as TEANGA_LLM_API_KEY. The
// Config type centralizes every knob the daemon and CLI need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
