// Package workflow drives episode processing: a discovery loop scans the
// configured podcast feeds for new episodes, and a pool of workers claims
// pending episodes and runs each through the step pipeline. Steps within one
// episode are strictly sequential; concurrency exists only across episodes.
package workflow
