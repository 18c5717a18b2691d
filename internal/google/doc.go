// Package google wraps the Google OAuth endpoints used by lifeassist:
// refresh-token exchange, the userinfo profile and token revocation.
//
// Google API clients obtain tokens through the TokenProvider interface,
// which the session broker implements.
package google
