// Package export writes the published artifacts of a refresh cycle: the CSV
// table, the iCalendar subscription files and an optional JSON snapshot.
//
// Every writer creates missing parent directories and replaces its target
// atomically (temp file in the same directory, then rename), so HTTP readers
// never observe a half-written file.
package export
