// Package datastore is the application data store: the in-memory
// collections the UI reads and the actions that change them.
//
// Every action goes through the engine's Executor. Curated records are
// rejected before that, with a read-only error and a notice. The store
// owns one session-scoped remote client at a time; Login connects a client
// for the user and Logout replaces it with an anonymous one.
package datastore
