// Package notifications delivers push notifications about pipeline progress
// through an ntfy topic. When no topic is configured every notification is a
// silent no-op.
package notifications
