package instrumentation

import "strings"

// ExtractUserDomain extracts the domain part from an email address so
// metric labels stay bounded.
//
//	ExtractUserDomain("jane@example.com")  // "example.com"
//	ExtractUserDomain("invalid")           // "unknown"
//	ExtractUserDomain("")                  // "unknown"
func ExtractUserDomain(email string) string {
	if email == "" {
		return "unknown"
	}

	parts := strings.Split(email, "@")
	if len(parts) == 2 && parts[1] != "" {
		return strings.ToLower(parts[1])
	}

	return "unknown"
}

// Operation types for remote API metrics.
const (
	OperationList     = "list"
	OperationGet      = "get"
	OperationCreate   = "create"
	OperationUpdate   = "update"
	OperationDelete   = "delete"
	OperationExchange = "exchange"
	OperationRefresh  = "refresh"
	OperationRevoke   = "revoke"
	OperationProfile  = "profile"
	OperationComplete = "complete"
)

// RoutePattern returns a low-cardinality label for an HTTP path. Calendar
// event ids are collapsed so each event does not become its own series.
func RoutePattern(path string) string {
	const eventsPrefix = "/api/calendar/events/"
	if strings.HasPrefix(path, eventsPrefix) && len(path) > len(eventsPrefix) {
		return eventsPrefix + "{id}"
	}
	return path
}
