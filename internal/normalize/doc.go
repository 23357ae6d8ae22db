// Package normalize cleans raw ASR transcript text with an LLM while
// preserving segment timing for subtitle and study-material use.
package normalize
