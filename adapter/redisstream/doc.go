// Package redisstream carries encoded bus events over Redis Streams so a
// session can be journaled and replayed by another process.
//
// Transport name: "redis-streams"
//
// Config keys:
//   - addr: "host:port" (default "127.0.0.1:6379")
//   - username, password, db, tls, tls_server_name
//   - stream_prefix: prepended to every topic (default "appbus:")
//   - consumer: consumer name (default "appbus-<host>-<pid>")
//   - batch_size: XREADGROUP COUNT (default 64)
//   - block: XREADGROUP BLOCK duration (default 2s)
//   - auto_create: create group/stream if missing (default true)
//   - start_id: group start position, "$" for new entries or "0" to replay (default "$")
//   - max_len_approx: approximate stream trim length (default 0 = unbounded)
//   - dead_letter: stream that receives nacked messages (optional)
//   - claim_min_idle, claim_interval, claim_batch: pending entry recovery
//
// Consumption is ordered: one poller feeds one handler goroutine, because
// replayed input events must reach the bus in the order they were emitted.
//
//	tr, err := appbus.NewTransport(redisstream.TransportName, map[string]any{
//	    "addr":     "localhost:6379",
//	    "start_id": "0",
//	})
package redisstream
