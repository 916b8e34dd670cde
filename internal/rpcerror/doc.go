// Package rpcerror defines the error taxonomy shared by the resilience
// components: circuit rejection, endpoint exhaustion, retry exhaustion,
// and the sentinel errors that are never worth retrying.
package rpcerror
