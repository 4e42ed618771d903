// Package daemon is the event loop shell around a swim.Instance: it owns
// the periodic tick, the gRPC transport, the pending-indirect-probe
// timers, and the metrics/logging side effects of every directive the
// Instance returns. The Instance itself never touches a socket, a timer,
// or a log; this package is the "surrounding I/O shell" spec.md's
// PURPOSE & SCOPE names as the Instance's one collaborator.
package daemon
