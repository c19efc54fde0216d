// Package config loads sharedcal settings from command-line flags and the
// environment through viper.
//
// Every setting has a dotted key (for example "storage.lock_timeout"), an
// SHAREDCAL_-prefixed environment variable derived from it, and sometimes a
// legacy alias such as GOOGLE_OAUTH_CLIENT_ID or VALKEY_URL. Flags that were
// set explicitly win over the environment, which wins over defaults.
package config
