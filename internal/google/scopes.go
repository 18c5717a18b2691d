package google

import (
	calendar "google.golang.org/api/calendar/v3"
	oauth2v2 "google.golang.org/api/oauth2/v2"
)

// DefaultOAuthScopes are requested on every sign-in: identity for the
// profile record and read/write calendar access for the assistant.
var DefaultOAuthScopes = []string{
	"openid",
	oauth2v2.UserinfoEmailScope,
	oauth2v2.UserinfoProfileScope,
	calendar.CalendarScope,
}
