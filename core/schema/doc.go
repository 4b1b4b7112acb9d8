/*
Package schema compiles declarative data-model modules into a universe of
schema nodes.

A module declares data trees, operations and features, and may reference
other modules it imports:

	module: acme-system
	revision: "2024-03-01"
	imports: [acme-types]
	features: [ntp]
	data:
	  - container: system
	    children:
	      - leaf: hostname
	        type: string
	        mandatory: true
	      - leaf: ntp-server
	        if-feature: ntp
	        type: { base: leafref, path: "/acme-types:servers/server/name" }
	rpcs:
	  - rpc: reboot
	    input: [ { leaf: delay, type: uint } ]
	augments:
	  - target: "/acme-types:servers"
	    children: [ { leaf: owner, type: string } ]

# Universe

A Universe holds loaded modules and one node arena. Nodes refer to their
parent, children and top-level ancestor by NodeID. Parsing a module loads its
imports through a Source as imported-only modules; parsing or loading marks
the module itself implemented, which applies its augments and implements the
modules they target.

# Node kinds

	leaf, leaf-list        typed values (type, default, mandatory)
	container, list        interior nodes (presence, key)
	choice, case           alternatives, transparent in data
	anydata, anyxml        opaque values
	rpc, action            operations with input and output sides
	notification           events

Every node may carry when, must and if-feature conditions. A node whose
if-feature conditions (or an ancestor's) are not satisfied is disabled.

# Expressions

When, must, leafref paths and instance-identifier values use a path
language: absolute (/mod:a/b) and relative (../x) location paths,
predicates, current(), deref() and the usual operators. Atomize resolves an
expression to the schema nodes it references.
*/
package schema
