// Package endpoint models an addressable service instance together with its
// selection attributes (priority, weight, status), request metrics, and the
// health record maintained by the failover manager.
package endpoint
