// Package logger builds the slog.Logger shared by all components: JSON
// output in production, human-readable text elsewhere.
package logger
