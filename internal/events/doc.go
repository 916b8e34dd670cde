// Package events carries state-change records from the resilience components
// to interested subscribers. Publishing never blocks the calling hot path:
// each subscriber gets a buffered channel backed by an overflow queue, so
// every record is eventually delivered to live subscribers.
package events
