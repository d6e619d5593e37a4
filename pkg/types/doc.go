/*
Package types defines the shared data model of the deployment agent.

FileRecord and SyncPlan describe file topology for one run: records carry
slash-normalized relative paths with whole-second mtimes, and a plan holds
the disjoint create/update/delete sets the sync engine computed. Both live
only for the duration of a single run.

TenantDescriptor ties a seed JSON file to the tenant database it
parameterizes via its webid.

The error kinds (ConfigError, EndpointError, TransferError, SQLError,
SeedError, CacheError) classify failures by fatality: configuration and
endpoint errors abort before any destructive action, transfer errors in
the sync plan are recorded per path and fail the run at the end (a failed
file mapping or wipe stops the run at once), SQL errors skip all
subsequent database phases, seed errors abort only their spec, and cache
errors never undo a deploy that already succeeded.
*/
package types
