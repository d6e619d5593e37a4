/*
Package database executes the ordered SQL phases of a deployment.

One administrative MySQL connection is held for the whole run. When the
destination is remote the TCP stream is forwarded through the already
authenticated SSH session, so the database server only ever needs to
listen on its loopback.

Phases run strictly in order: the main database's setup, tables,
procedures and data directories; the same directories per tenant with
{{WEBID}} and the tenant db_name bound; the one-shot tenant data scripts
(which route themselves with their own USE statements); and finally the
seed tables. In migration mode only the migration directories run, main
first. Clean install drops every database the run is about to create
before anything else.

Files inside each directory execute in ascending filename order and are
split into statements honoring DELIMITER redefinitions, string literals
and comments. A file whose recorded mtime matches the script cache is
skipped unless ignore_cache or clean_install is set; the cache entry is
updated only after the whole file succeeded, so a failed file re-runs on
retry. The first server rejection aborts the containing file and every
later phase.
*/
package database
