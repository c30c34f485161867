// Package health aggregates component health for the /health endpoint.
//
// Listeners push their state into a Monitor as they move between
// connecting, listening and draining. The graph store and the broker client
// register a Checker instead, which is probed whenever Check is called.
// The aggregate is unhealthy as soon as one component is unhealthy.
package health
