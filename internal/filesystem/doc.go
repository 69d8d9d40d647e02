/*
Package filesystem provides resilient filesystem operations with automatic retry logic
for NFS stale file handle errors, and the spool files used by remote fetches.

# Retry

StatWithRetry and OpenWithRetry wrap os.Stat and os.Open. Only ESTALE (stale file
handle) triggers a retry; every other error is returned immediately. Retries back off
exponentially:
  - MaxRetries: 3 attempts
  - InitialBackoff: 50ms
  - MaxBackoff: 500ms

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())

# Volumes

Metrics are labeled with the volume a path lives on. Configure the mapping once at
startup:

	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
	    "media":    cfg.MediaDir,
	    "spool":    cfg.SpoolDir,
	    "database": cfg.DatabaseDir,
	}))

Paths outside every configured volume are labeled "local".

# Spool files

CreateSpool makes a uniquely named hunt-<uuid>.spool file; RemoveSpool deletes it and
tolerates a file that is already gone. PurgeSpool clears files left behind by a crash
and never touches anything that does not follow the spool naming pattern.

# Metrics

The package does not import the metrics package. Install an Observer with SetObserver
(metrics.NewFilesystemObserver in production); without one, recording is skipped.
*/
package filesystem
