// Package runtime wires storage, namespace and the persisted log into a
// single-node remq store. It exposes Open/Close, a health check, and the
// namespace's eventlog.Log.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
//	id, _ := rt.Log().Append(context.Background(), "orders.created", []byte("hello"))
package runtime
