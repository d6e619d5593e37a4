/*
Package cache implements the persistent trust layer for incremental runs.

The cache is a JSON document named ".deploy_cache_<config-stem>.json" kept
beside the configuration file. It records the source-observed size and
mtime of every deployed file, executed SQL scripts by absolute path and
mtime, file-mapping source mtimes, and pre-build watch mtimes.

When a prior cache exists, the sync engine skips listing the destination
entirely and treats the cache's files map as the authoritative destination
view. Deleting the file is always safe; the next run falls back to a full
comparison.

Writes are atomic: Save serializes to a temporary sibling and renames it
over the real file, and the orchestrator calls Save only as the final act
of a fully successful, non-dry run. Any earlier failure leaves the previous
cache byte-identical on disk.
*/
package cache
