// Package storage persists weather subscriptions in SQLite.
//
// Every mutation is durably written before it is acknowledged: a
// subscription a caller has seen created can never be "un-created" by a
// crash, and LoadAll at boot always reflects the last acknowledged state.
package storage
