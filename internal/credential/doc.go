// Package credential stores Google sign-in records.
//
// A record is keyed by the provider subject id and can also be found by
// email. Writes are partial: Save merges the non-nil fields of an Update
// into the stored record, so a token refresh never erases the profile and a
// refresh response without a new refresh token never erases the old one.
//
// Backends: MemoryStore, ValkeyStore and PostgresStore. EncryptedStore and
// InstrumentedStore decorate any of them.
package credential
