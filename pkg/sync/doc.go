/*
Package sync implements the incremental file-sync engine.

A run is two steps. BuildPlan lists the source (ignore rules applied during
the walk) and establishes the destination view: a real listing when the
cache cannot be trusted (ignore_cache, clean_install, or first run),
otherwise the trust cache's files map with zero destination round-trips —
the central performance optimization of incremental mode. The diff marks a
source file for update when its size differs or its mtime is strictly
newer; deletions are only ever inferred from a real listing, never from
the cache alone.

Execute creates ancestor directories shallow-to-deep, then streams creates
and updates through a bounded errgroup worker pool (sized
max_concurrent_transfers when an SSH endpoint is involved, one worker for
purely local syncs), and finally runs deletes single-threaded: files
first, then any directory left empty. Individual transfer failures are
retried per the endpoint policy, recorded per path, and do not stop the
rest of the plan; a run with failures finishes nonzero and keeps the old
cache.

ApplyMappings copies the explicit file mappings after the main plan,
bypassing the ignore rules and skipping entries whose source mtime matches
the cache's file_mappings record.

Dry-run mode performs listing, diffing and mapping resolution, logs every
operation it would make, and touches neither endpoint.
*/
package sync
