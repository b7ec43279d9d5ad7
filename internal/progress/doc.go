// Package progress carries refresh job progress from the worker to pluggable
// sinks. Events are buffered by a non-blocking Hub and flushed in batches on a
// background goroutine, so a slow sink never delays scraping.
package progress
