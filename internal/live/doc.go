// Package live implements remq live channels: best-effort push delivery of
// freshly appended messages to processes registered for a channel pattern.
//
// Two transports are provided:
//
//   - Hub, an in-process fan-out. Each client takes its own HubConn. The Hub
//     is also an eventlog.Notifier, so wiring it into a Log makes every
//     committed append visible to registered patterns in id order.
//   - NATS, backed by nats.go. Messages are published to
//     remq.<namespace>.ch.<channel tokens>; a pattern subscribes to the
//     narrowest subject wildcard covering it and filters locally.
//
// Register returns only once the registration is effective: any message
// published after it returns is delivered. Deregister stops further
// callbacks; one already running may still complete.
package live
