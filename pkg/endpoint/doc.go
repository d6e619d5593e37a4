/*
Package endpoint provides a uniform capability set over the two file
transports: a local filesystem root (possibly a mounted UNC share) and a
remote SSH host reachable via SFTP.

The Endpoint interface covers open/close, recursive listing, stat,
streaming read, write with implicit ancestor-directory creation, delete,
and shell execution (remote only). Listings return a FileRecord per
regular file with slash-normalized relative paths and whole-second mtimes;
hidden files are included, and remote symlinks are traversed one level
with an in-flight stack guarding against cycles.

The SSH driver multiplexes up to max_concurrent_transfers SFTP channels
over one authenticated session. Channels are leased from a bounded pool;
acquisition blocks until a slot frees. Shell execution and the database
tunnel (DialContext) use dedicated channels and never contend with file
transfers. The session is owned by the orchestrator and closed exactly
once in teardown.

Retry wraps individual operations with the transfer retry policy: three
retries at 0.5s/1s/2s backoff for transient failures, immediate surfacing
of permanent ones (authentication, permission denied, no such file).
*/
package endpoint
