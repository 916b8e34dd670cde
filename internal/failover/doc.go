// Package failover owns the notion of the current active endpoint. It
// composes per-endpoint health tracking with a pluggable selection strategy
// and re-elects the active endpoint when the current one fails, under a
// single election lock so concurrent failures cannot elect two winners.
package failover
