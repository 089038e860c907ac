// Package remq is a durable, replayable publish/subscribe client on top of an
// ordered persisted log and a best-effort live channel.
//
// A Client subscribes glob patterns either at "now" (live delivery only) or
// from a cursor. Subscriptions from a cursor page through history, then hand
// over to live delivery without gaps or duplicates: live messages are
// buffered while the last history pages are confirmed empty, and a handover
// that races with new appends is abandoned and retried. Every delivery, from
// any path, passes through one per-pattern gate that drops ids at or below
// the pattern's cursor.
//
// Notifications are delivered to registered Observers in id order per
// pattern. Observers run on the delivering goroutine. They may call
// Unsubscribe, for example to stop after one message, but must not call
// Close synchronously.
package remq
