// Package logging provides structured logging utilities for lifeassist.
//
// Everything logs through log/slog. This package configures the default
// handler from LOG_LEVEL / LOG_FORMAT and keeps attribute names consistent.
//
// # Usage Patterns
//
//	slog.Info("token refreshed",
//	    logging.Operation("session.refresh"),
//	    logging.UserID(userID))
//	slog.Warn("refresh failed", logging.UserID(userID), logging.Err(err))
//
// # Security Considerations
//
//   - User ids and emails are hashed before they reach a log line
//   - Tokens are never logged directly, only SanitizeToken output
package logging
