// Package repository stores mirrored artifact files in a blob bucket laid out
// like a remote repository.
//
// The output root is either a local directory or any gocloud.dev/blob bucket
// URL. Local directories are opened with fileblob without attribute sidecar
// files, so the tree can be served or copied as a plain repository.
//
// # Writing
//
// [Store.NewWriter] returns a [Writer] that computes md5 and sha1 digests over
// the bytes it writes. [Writer.Close] commits the file and returns its
// [Digests]; [Writer.Abort] cancels the write and removes any partial data,
// leaving a file committed earlier at the same path untouched.
// Blob writers only make a file visible once Close succeeds, so readers never
// observe a partially written artifact.
//
// # Manifest
//
// A completed run records what it wrote in a manifest:
//
//	{root}/.offliner/manifest.json
//
//	{
//	  "run_id": "5f0c...",
//	  "entries": [
//	    {"path": "org/x/x/1.0/x-1.0.jar", "size": 1024, "sha1": "..."},
//	    ...
//	  ],
//	  "completed_at": "2025-01-15T10:30:00Z"
//	}
//
// [Validate] re-reads every entry and reports missing files, size mismatches
// and digest mismatches. [Delete] removes every entry and then the manifest.
package repository
