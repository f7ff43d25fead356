// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

/*
Package types holds the shared vocabulary of the Cascade runtime.

types is the bottom-most package: it depends on nothing inside the module
and every other package depends on it. Anything that crosses a package
boundary lives here.

  - Value / Kind        - closed JSON-like value model with a depth-first visitor
  - RunError            - structured errors with category and repairability
  - RepairContext       - handoff payload for the external repair loop
  - RunWarning          - non-fatal conditions that degrade a run
  - RunStatus           - SUCCESS / DEGRADED / FAILED derivation
  - LLMCallRecord       - one model invocation, accumulated in call order
  - MetricsSummary      - per-run roll-up for traces and results

The Value model is deliberately closed: the compiler's static shape checks
and the runtime's template scanning walk the same six kinds with the same
visitor, so a value the validator accepts is a value the runtime can scan.
*/
package types
