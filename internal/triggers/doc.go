// Package triggers runs record change triggers.
//
// The Runtime receives committed changes from the store (it is a store.Sink)
// or from the trigger webhook and hands each one to the sync dispatcher on a
// bounded pool of goroutines. Trigger failures are logged and counted, never
// retried and never propagated back to the writer of the record.
package triggers
