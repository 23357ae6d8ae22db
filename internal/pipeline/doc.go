// Package pipeline defines the processing step contract and the runner that
// drives an episode through its steps.
//
// Steps declare the artifacts they consume and produce; the runner owns all
// sequencing decisions around them. Before invoking a step it skips work
// whose outputs are already published and valid, and refuses to start a step
// whose required inputs are missing. After a step returns success the runner
// verifies every declared output was actually written before recording
// anything; the success record and the artifact publish flip share one
// transaction.
//
// Every attempt appends its own history rows: a running row when the attempt
// starts and a success, failure, or skipped row when it ends. Skip rows carry
// attempt 0 because no attempt ran. Transient failures retry on an
// exponential backoff schedule inside the configured attempt budget;
// permanent failures and cancellations halt the episode immediately unless
// the step declares itself optional.
package pipeline
