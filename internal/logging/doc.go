// Package logging sets up structured slog output for One-Desk.
// Logs are JSON lines written to ~/.onedesk/logs/server.log with size-based
// rotation, optionally mirrored to stderr.
package logging
