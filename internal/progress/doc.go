// Package progress provides progress reporting for mirror runs.
//
// This package outputs human-readable progress information, including
// completion percentage, transfer speed and per-state file counts.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    TotalFiles: len(requests),
//	    Workers:    8,
//	    Output:     os.Stderr,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	reporter.TransferStarted()
//	reporter.BytesWritten(n)
//	reporter.TransferCompleted()
//
// # Output Format
//
//	[offliner] Mirror 1: https://repo1.maven.org/maven2
//	[offliner] Files: 120 | Workers: 8
//	[offliner] Progress: 45.0% | 12 MiB | Speed: 3.1 MiB/s
//	[offliner] Files: 52 completed | 2 failed | 8 in-progress | 58 pending | 3 retries
package progress
