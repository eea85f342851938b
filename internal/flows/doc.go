// Package flows contains pipeline orchestration logic decoupled from the
// root package through dependency structs of closures. Flow functions hold
// no state, perform no I/O of their own, and report classified failure
// kinds that the Engine maps to its public sentinel errors.
package flows
