// Package pebblestore is the on-disk engine under the persisted log. It owns
// the fsync policy, commits batches under a context, scans bounded key
// ranges, and reports timings to a Metrics sink (NewPromMetrics for
// Prometheus, NoopMetrics otherwise).
//
// The event log writes one batch per append so the record and the updated
// last-id meta land atomically:
//
//	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
//	b := db.NewBatch()
//	defer b.Close()
//	_ = b.Set(recordKey, frame, nil)
//	_ = b.Set(metaKey, lastID, nil)
//	err = db.CommitBatch(ctx, b)
//
// Prune deletes a key range and then calls CompactRange over it.
//
// Once Close has run every call returns ErrClosed. The log maps that to
// ErrStoreUnavailable.
package pebblestore
