/*
Package config loads and validates the JSON deployment document.

A document describes both halves of a run: file topology (source,
destination, ignore rules, optional renames) and database topology (main
database, per-tenant databases, one-shot data scripts, seed tables).

Loading is a three-step pipeline:

 1. Decode to a generic tree and run template pass 1, substituting
    {{APPLICATION_NAME}} into every string value, including fields the
    engine treats as opaque (website).
 2. Decode the templated tree into the typed Config over pre-filled
    defaults, so absent options keep their documented values
    (delete_extra_files=true, verbose=true, max_concurrent_transfers=20).
 3. Validate structural rules: agent_name must be "ai-deploy", endpoint
    types are windows_share or ssh, SSH endpoints carry exactly one of
    password or private key, and migration_only excludes clean_install.

All failures are reported as *types.ConfigError and abort the run before
anything is touched.
*/
package config
