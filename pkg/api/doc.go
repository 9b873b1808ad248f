// Package api assembles the HTTP surface of the platform: it wires the
// feature handler groups (projects, versions, organizations, collections,
// users, bans, auth) onto a single gorilla/mux router behind the shared
// middleware chain.
package api
