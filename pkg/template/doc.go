/*
Package template substitutes the two placeholder tokens the agent
recognizes. Pass 1 expands {{APPLICATION_NAME}} across every string value
of the configuration tree right after loading; pass 2 expands both
{{APPLICATION_NAME}} and, in per-tenant contexts, {{WEBID}} in raw SQL at
execution time. Substitution is plain text: case-sensitive, non-recursive,
and tokens without a bound value pass through to the server unchanged.
*/
package template
