/*
Package seed expands INSERT templates over seed JSON documents.

Each JSON file in the configured directory is a parent document and also a
tenant (its required webid identifies the tenant database). For every seed
table spec the engine extracts the template region between the begin/end
marks of the table's SQL file, then emits one INSERT per expansion step:
once per parent, once per element of array_field, or once per element of
nested_array_field inside each outer element.

Variable bindings resolve dot-notation paths against the innermost
element, the single dot "." yields the element itself (primitive arrays),
and from_parent walks outward: the outer element first, then the parent
document. Missing fields fall back to the binding default and then to the
SQL token NULL with the template's surrounding quotes stripped. String
values have single quotes doubled; the template carries the quoting.

Values bound to exactly {{PASSWORD}} or {{PASSWORD_HASH}} are bcrypt-hashed
at cost 10 and emitted in the $2y$ format the destination application
expects.

An existence check query, when configured, runs once per parent and skips
all of that parent's emissions when it reports rows. A failing spec aborts
only itself; the remaining specs still run.
*/
package seed
