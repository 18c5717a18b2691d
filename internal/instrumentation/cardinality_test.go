package instrumentation

import "testing"

func TestExtractUserDomain(t *testing.T) {
	tests := []struct {
		email    string
		expected string
	}{
		{"jane@example.com", "example.com"},
		{"Jane@Example.COM", "example.com"},
		{"test@subdomain.example.com", "subdomain.example.com"},
		{"invalid", "unknown"},
		{"", "unknown"},
		{"@", "unknown"},
		{"user@", "unknown"},
		{"@domain.com", "domain.com"},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			result := ExtractUserDomain(tt.email)
			if result != tt.expected {
				t.Errorf("ExtractUserDomain(%q) = %q, want %q", tt.email, result, tt.expected)
			}
		})
	}
}

func TestRoutePattern(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/api/calendar/events", "/api/calendar/events"},
		{"/api/calendar/events/", "/api/calendar/events/"},
		{"/api/calendar/events/abc123", "/api/calendar/events/{id}"},
		{"/api/auth/session", "/api/auth/session"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := RoutePattern(tt.path); got != tt.expected {
				t.Errorf("RoutePattern(%q) = %q, want %q", tt.path, got, tt.expected)
			}
		})
	}
}
