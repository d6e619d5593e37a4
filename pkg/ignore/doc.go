/*
Package ignore filters relative paths against the configuration's three
pattern tiers: folder names matched against every path segment, file
patterns matched against the final segment, and extensions (leading dot
included). Patterns use shell-style wildcards and are matched
case-insensitively when the endpoint root is a Windows path.
*/
package ignore
