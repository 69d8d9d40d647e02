// Package indexer keeps the media index in step with the media directory.
//
// A run walks the directory, probes every image's dimensions with the codec
// using a bounded pool of workers, writes the rows in batches and deletes
// rows for files the run did not see. Runs happen at startup, on a fixed
// interval, and shortly after the fsnotify watcher reports a change.
package indexer
