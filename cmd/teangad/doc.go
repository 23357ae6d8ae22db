// Command teangad runs the teanga background daemon: it watches configured
// podcast feeds, claims pending episodes, and drives each one through the
// processing pipeline while serving the HTTP status API.
package main
