// Package exchange implements the run-scoped key/value exchange that lets
// task instances of one execution hand values to each other.
//
// An entry is addressed by (run, producing task, label). A later publish
// under the same key replaces the earlier one; there is no versioning.
// Entries of one run are never visible to another run, and by default they
// are purged when the run ends.
package exchange
