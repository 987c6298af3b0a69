// Package downloader fetches planned transfer requests from mirrors into an
// output repository.
//
// # Usage
//
//	err := downloader.Download(ctx, planner.Requests(), store, rep, downloader.Options{
//	    Workers:     8,
//	    MaxAttempts: 3,
//	    Progress:    reporter,
//	})
//
// # Worker Pool
//
// A fixed pool of workers reads requests from one channel. Each request runs
// through its own state machine:
//
//	pending -> attempting(mirror) -> success
//	                 |  ^
//	                 v  |
//	           retry-pending        (transient failure, attempts left)
//	attempting -> attempting(next mirror)   (attempts exhausted or non-retryable)
//	attempting -> failed                    (mirrors exhausted, write error, cancelled)
//
// Workers share nothing except the report and the checksum cache.
//
// # Verification
//
// Primary files are streamed into the repository while md5 and sha1 are
// computed. Once committed, the digests are compared with the companion
// checksum files; a mismatch removes the file. Companion files are fetched at
// most once per run, whether by their own request or by the primary's
// verification, and are never written to the output.
//
// # Graceful Shutdown
//
// On cancellation, or when the circuit breaker trips:
//   - Stop handing out new requests
//   - Abort in-flight writes, leaving no partial files and keeping files
//     committed by earlier runs
//   - Record interrupted requests with the context error
package downloader
