// Package auth implements sign-in and actor credentials: OIDC login,
// opaque session tokens stored by hash, and OAuth client app records.
// Actor resolution from a request lives in pkg/middleware; this package
// owns issuance and lookup.
package auth
