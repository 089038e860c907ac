// Package client provides the `remq client` commands.
//
// The commands talk to a remq store over gRPC and, when a NATS URL is
// given, receive live deliveries from the same NATS server the store
// publishes appends to. Without NATS a subscription replays and then keeps
// polling the store.
//
// # Address configuration
//
// --grpc defaults to REMQ_GRPC (127.0.0.1:7070), --nats to REMQ_NATS_URL,
// and --namespace to REMQ_NAMESPACE (default). The namespace must match the
// server's, since it scopes NATS subjects.
//
// Usage
//
//	remq client publish --channel orders.created --data '{"id":42}'
//	echo hello | remq client publish --channel greetings --data -
//
//	# Replay everything then follow live
//	remq client subscribe --pattern 'orders.*' --from 0 --nats nats://127.0.0.1:4222
//	# Live only, with a filter
//	remq client subscribe --pattern 'orders.*' --filter 'size < 1024' --nats nats://127.0.0.1:4222
//
//	remq client consume --pattern 'orders.*' --after 100 --limit 10
//
//	remq client purge --pattern 'orders.*' --keep 1000
//	remq client purge --pattern 'orders.*' --before 5000
//
// Output is one JSON object per line; bodies appear as payload_json,
// payload_text or payload_b64 depending on content.
package client
