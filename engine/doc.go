// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

/*
Package engine compiles workflow IR against a node registry and executes
the result.

Compilation binds every node to its registry entry, indexes edges for
action routing, and statically checks template references against the
declared output shapes. Execution is a sequential dispatch loop: run the
current node, follow the edge matching its returned action, stop at the
first node with no matching edge. Each run gets its own wrapper chains,
usage collector, and trace recorder, so one Engine serves any number of
concurrent runs.

A node failure is not an error return. Execute reports it inside the
Result with status FAILED and, when the failure is repairable, a
RepairContext for the external repair loop. The error return is reserved
for runs that never started: invalid inputs or a factory that refused to
build.
*/
package engine
