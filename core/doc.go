// Package core holds the shared contracts of go-hooks: configuration,
// error envelopes, logging aliases, metrics and job queue contracts.
// Publisher, subscriber and store packages depend on core; core depends on
// none of them.
package core
