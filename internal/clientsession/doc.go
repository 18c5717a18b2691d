// Package clientsession remembers who was signed in on a client and
// restores that session on the next visit without user interaction.
//
// A Cache stores the pointers (last user id, last email, the intentional
// sign-out flag and the email debounce record) in an injected Storage: HTTP
// cookies on the server, a JSON file for the CLI, memory in tests.
//
// The Restorer is a small state machine:
//
//	Unknown -> Restoring -> Authenticated | SignedOut
//
// An intentional sign-out short-circuits it without touching the credential
// store. Email-based restores are debounced, and transient failures get a
// bounded number of retries with exponential backoff.
package clientsession
