// Package llm provides an OpenRouter chat client for the AI-backed steps.
//
// This package is used by:
//   - Normalize step: clean raw transcripts into standard orthography
//   - Materials step: generate glosses and exercises from transcripts
//   - Dialect step: produce the dialect feature card
//
// The client is prompt-agnostic; each step owns its prompts and decodes the
// JSON payload it asked for.
//
// # Configuration
//
// Requires api_key, model, and optionally base_url, referer, title, timeout.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.CompleteJSON: send system/user prompts, receive JSON response.
// Client.HealthCheck: verify API key and model availability.
// ClassifyError: tag a client failure with the pipeline retry marker.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors and network timeouts with
// exponential backoff (base 1s, max 10s, up to 5 attempts by default).
// Context cancellation aborts retries immediately. Failures that survive
// the in-client retries are classified for the pipeline by ClassifyError:
// rate limits, timeouts, and server errors stay transient so the step-level
// budget can try again later; refusals and malformed requests are permanent.
package llm
