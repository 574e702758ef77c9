/*
Package s3 exposes an AWS S3 bucket, or a prefix within one, as a read-only versioned
filesystem.FileSystem.

# Layout

Keys map directly onto paths: "docs/a.txt" is a file, and every key prefix ending in a
slash is a directory. Zero-byte keys ending in a slash are folder markers; they make an
otherwise empty directory exist and never appear as files.

	bucket/prefix/
	├── index.html          -> "index.html"
	└── docs/               -> "docs/"
	    └── a.txt           -> "docs/a.txt"

# Versions

A file's version is its ETag. A directory's version is a BLAKE3 digest of its sorted
child names and child versions, computed from one recursive listing of the directory, so
it changes whenever anything below it changes:

	StatAsync("docs/")  -> ListObjectsV2(prefix "docs/")        -> one StatInfo
	Read("docs/")       -> ListObjectsV2(prefix "docs/", "/")   -> child names
	Read("docs/a.txt")  -> GetObject("docs/a.txt")              -> bytes

GetVersion reports the root version seen by the last stat of the root or Refresh.

# Errors

NoSuchKey becomes errors.ErrCodeFileNotFound. SlowDown, throttling codes and HTTP 503 become
errors.ErrCodeThrottled and are retried with exponential backoff before being surfaced.
Everything else is errors.ErrCodeSystemError.

A circuit breaker sits in front of the retries. After five consecutive failed requests it
opens and requests fail immediately with errors.ErrCodeSystemError wrapping
circuit.ErrOpenState; after 30s one trial request is let through. WithCircuitBreaker
changes the thresholds. NotFound answers never count as failures.

# Usage

	client, err := s3.NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	fs, err := s3.New(client, "my-bucket", cfg)
	if err != nil {
		return err
	}
	info, err := filesystem.Stat(ctx, fs, "docs/")
*/
package s3
