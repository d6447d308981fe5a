// Package coordinator drives a crawl session through its states:
//
//	READY -> RUNNING -> COMPLETED | PAGE_LIMIT_REACHED | ABORTED
//
// Each round dequeues up to min(concurrency, remaining page budget)
// targets from the frontier and processes them with a bounded errgroup.
// Because the batch never exceeds the remaining budget, the number of
// successful fetches can never pass MaxPages. When the limit is reached,
// targets still in the frontier are discarded and counted.
//
// A failing page is recorded and skipped. Only cancellation of the context
// or MaxSinkFailures consecutive write failures abort the session.
package coordinator
