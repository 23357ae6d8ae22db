package pipeline

import (
	"context"

	"teanga/internal/store"
)

// Step describes the contract the runner needs from each pipeline step.
// Run must either produce every declared output through the artifact store or
// return an error; the runner enforces this after each attempt.
type Step interface {
	Name() string
	RequiredInputs() []string
	DeclaredOutputs() []string
	Run(context.Context, *store.Episode) error
}

// Optional marks steps whose failure records in history but does not halt the
// episode.
type Optional interface {
	Optional() bool
}

// NonDeterministic marks steps whose outputs legitimately differ between
// runs, such as LLM-backed generation. All other steps are expected to
// produce byte-identical artifacts when re-run over the same inputs.
type NonDeterministic interface {
	NonDeterministic() bool
}

// HealthChecker lets a step report collaborator readiness before the daemon
// starts accepting work.
type HealthChecker interface {
	HealthCheck(context.Context) Health
}

// Health summarizes the readiness of a pipeline step.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// IsOptional reports whether a step declares itself optional.
func IsOptional(step Step) bool {
	opt, ok := step.(Optional)
	return ok && opt.Optional()
}

// IsNonDeterministic reports whether a step declares non-deterministic output.
func IsNonDeterministic(step Step) bool {
	nd, ok := step.(NonDeterministic)
	return ok && nd.NonDeterministic()
}
