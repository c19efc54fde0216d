// Package idempotency guarantees at most one externally visible side effect
// per logical request.
//
// A Cache keys each request by its operation name, the caller's idempotency
// token and the canonical JSON of its payload. The first request runs its
// resolver while the table lock is held; repeats within the TTL replay the
// stored response without touching the remote API:
//
//	res, err := cache.Run(ctx, "create_event", key, req, func(ctx context.Context) (json.RawMessage, error) {
//	    return client.Do(ctx, insert)
//	})
//	if res.Replayed {
//	    // no remote call was made
//	}
package idempotency
