// Package swim implements the core SWIM-with-Lifeguard failure detector
// and weakly-consistent membership engine as a pure reducer: every
// exported Instance method takes the current state and one event and
// returns the new state plus an ordered list of Directives describing
// what the surrounding shell must do. The package performs no I/O, starts
// no goroutines, and reads no clock or randomness of its own; both are
// injected so tests can run the protocol's timing and selection logic
// deterministically.
package swim
