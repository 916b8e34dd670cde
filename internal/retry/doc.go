// Package retry wraps a single operation invocation with bounded retry
// attempts and a configurable backoff curve. Classification decides which
// errors are worth retrying; everything else propagates immediately.
package retry
