/*
Package policy implements the command policy from the original deployment's
should_offload heuristic: a small hard blocklist for Validate, and a
pattern-plus-load classifier for ShouldOffload.

Both functions are pure given their inputs — ShouldOffload takes a
LoadSample rather than sampling /proc itself — so the policy itself never
touches the network or spawns a process.
*/
package policy
