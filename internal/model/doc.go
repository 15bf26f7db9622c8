// Package model defines the records that flow through the sync engine.
//
// This package contains type definitions only. Every other internal package
// imports model; model imports nothing internal.
//
// Key constraints:
//   - Entity ids are generated client-side, never assigned by the remote store
//   - Official records always carry ReadOnly=true
//   - All JSON tags use snake_case; rows are keyed remotely by "id"
//   - Weights are integer grams, never floats
package model
