// Package users implements user accounts: lookup, profile updates, and
// the admin-only role and badge mutations. Session issuance lives in
// pkg/auth; this package only stores accounts.
package users
