// Package eventlog implements the remq persisted log on top of Pebble.
//
// # Overview
//
// Each namespace owns one globally ordered sequence of ids shared by every
// channel. Keys are lexicographically ordered for efficient range scans:
//   - ns/{ns}/log/m             (metadata: last assigned id)
//   - ns/{ns}/log/e/{id_be8}    (entries)
//
// Records are stored as protobuf wire fields {1: channel, 2: body} followed
// by a crc32c trailer.
//
// API surface (internal)
//
//	l, _ := OpenLog(db, "default", WithNotifier(hub))
//	id, _ := l.Append(ctx, "events.create", body)
//
//	// Pattern-filtered page after a cursor. A page shorter than limit means
//	// no further matching entry exists past the last returned id.
//	msgs, _ := l.ReadRange(ctx, "events.*", 0, 1000)
//
//	// Retention by threshold or count
//	n, _ := l.Prune(ctx, "events.*", message.PruneKeep(100))
//
// # Notification
//
// A Notifier is called after every committed append while the append lock is
// held, so notifications observe the same order as ids. The default is a
// no-op. Prunes report deleted id ranges to an optional PruneHook.
package eventlog
