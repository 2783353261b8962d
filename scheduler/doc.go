/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package scheduler admits, orders, deduplicates and paces text-analysis requests
// that are forwarded one at a time to a rate-limited downstream generator.
//
// Producers call Scheduler.Submit. A request whose fingerprint is already in the result cache
// is answered immediately. Otherwise it joins the in-flight task for the same fingerprint
// or becomes a new Task in the bounded priority Queue, and the producer blocks on the task's
// completion signal for at most the configured wait timeout.
//
// A single Dispatcher takes the most urgent task, sleeps as long as the Governor requires,
// calls the generator and resolves the task. Quota errors put the task back into the queue
// with a fresh timestamp and make the Governor back off.
package scheduler
