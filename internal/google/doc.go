// Package google manages the single shared Google OAuth credential set.
//
// CredentialStore persists the token record through a storage.Store so that
// every process sharing the document sees the same access and refresh token.
// Refresher performs the refresh-token and authorization-code grants and
// merges the results back into the store. StateStore backs the one-time
// bootstrap flow that obtains the first refresh token.
package google
