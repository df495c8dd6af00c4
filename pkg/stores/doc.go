// Package stores persists sampling history in SQLite: the samples drawn from
// each script (accepted or rejected, with their assignments and DOT graph),
// the runs executed over them, and an append-only event log. The schema is
// applied with embedded golang-migrate migrations.
package stores
