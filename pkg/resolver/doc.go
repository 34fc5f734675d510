/*
Package resolver defines the boundary between the update pipeline and the
index engine: the set of operations the Update Store and Dump Task need from
a live index without depending on how that index stores or searches its
documents.

Resolver and IndexHandle are implemented outside this module by the search
core; latticed only consumes them. Fake, an in-memory implementation, is
used by this module's own tests and is also what cmd/latticed and
cmd/latticed-migrate wire in as their resolver.
*/
package resolver
