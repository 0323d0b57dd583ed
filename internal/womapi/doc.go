// Package womapi is a small client for the Wise Old Man group endpoint
// (GET https://api.wiseoldman.net/v2/groups/{id}).
//
// A Client fetches and decodes one Group per call. Nothing is cached: a Group
// lives for a single request/response cycle and is dropped after the summary
// has been derived from it.
//
// Failures come back as one of four typed errors:
//
//   - *ConfigurationError: no group id, no request issued;
//   - *TransportError: connection/DNS/timeout, body never read;
//   - *HTTPStatusError: the API answered with a non-2xx code;
//   - *DecodeError: a 2xx body that is not a group.
//
// Describe renders any of them as the single line shown to the user.
// IsTransient tells which ones a retry could fix; WithRetry retries exactly
// those.
//
// Example:
//
//	c := womapi.NewClient(womapi.WithRetry(2, time.Second, 5*time.Second))
//	c.FetchAsync(ctx, "139", "", func(g *womapi.Group, err error) {
//	    if err != nil {
//	        sink.Emit(womapi.Describe(err))
//	        return
//	    }
//	    sink.Emit(womapi.Summary(g))
//	})
package womapi
