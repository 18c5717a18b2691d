// Package session implements the sign-in and token lifecycle for a Google
// account.
//
// The Broker starts and completes the OAuth authorization code flow (with
// PKCE), persists the resulting credential and hands out access tokens
// through GetActiveAccessToken. A token with less than five minutes left is
// renewed with the stored refresh token. Renewals are serialized per user,
// so concurrent requests never persist competing tokens.
//
// Failures are classified as ErrSessionNotFound, ErrSessionExpired,
// *SignInError or *RemoteServiceError. Only the first two mean "sign in again".
package session
