/*
Package deploy wires the deployment components into one orchestrated run.

The control flow per run: acknowledge the configured warning, load the
trust cache, open source and destination endpoints, run the pre-build
gate, wipe the destination on clean install, compute and execute the sync
plan, apply file mappings, execute the database phases (sharing the
destination's SSH session for the MySQL tunnel), run the permissions
script, and finally write the cache.

The cache write is strictly the last action of a fully successful,
non-dry run; any earlier failure leaves the previous cache intact, so a
retry re-compares or re-runs exactly what did not land. Endpoints are
released on every exit path. A run with one or more recorded transfer
failures completes the rest of its plan but reports failure and skips the
cache write.

The orchestrator never prompts on its own: confirmation for warnings and
clean installs is injected as a ConfirmFunc by the CLI, and progress is
published through the optional event broker.
*/
package deploy
