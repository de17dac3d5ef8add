// Package progress defines primitives for reporting and aggregating the
// progress of action runs. Callers attach a tracker to the context and read
// snapshots or receive change callbacks while the loop dispatches tasks.
package progress
