// Package http provides the HTTP client used to fetch repository files from
// mirrors.
//
// Each call to [Client.Get] is a single attempt: the engine owns retry and
// mirror failover, so the client only classifies what went wrong.
//
// # Errors
//
//   - [NetworkError]: connection failure or per-attempt timeout (Timeout=true)
//   - [StatusError]: non-2xx response; unwraps to [ErrNotFound],
//     [ErrForbidden], [ErrUnauthorized] or [ErrServerError]
//   - context.Canceled / context.DeadlineExceeded when the caller's context ends
//
// # Rate Limiting
//
// Options.RateLimit bounds requests per second across every goroutine sharing
// the client.
package http
