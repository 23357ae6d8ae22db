// Package fetch implements the first pipeline step: pinning down which feed
// entry an episode refers to and freezing it as the feed_entry artifact.
// Later steps read the frozen entry instead of the live feed, so an episode
// keeps processing identically even after it rolls out of the feed window.
package fetch
