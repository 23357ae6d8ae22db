// Package api defines wire-format types and converters for the CLI and HTTP
// surfaces. It translates internal episode models into transport-friendly
// DTOs so consumers never couple to store types.
//
// DTOs use camelCase JSON tags. Internal enums (store.Status, store.StepStatus)
// are exposed as lowercase strings and timestamps use RFC3339 with
// milliseconds. Artifact checksums pass through verbatim, prefix included.
package api
