/*
Package config builds the router's runtime configuration from environment
variables, code-defined node defaults, and an optional YAML topology
overlay (CLUSTER_TOPOLOGY_FILE).

The node registry starts from a fixed, code-defined default (four nodes:
builder, orchestrator, researcher, inference) and is overridden first by
CLUSTER_<NODEID>_HOST / CLUSTER_<NODEID>_IP environment variables, then by
any nodes or field overrides present in the topology file. NodeOrder
preserves a stable iteration order so router scoring ties break the same
way across calls, the way the original deployment's dict-literal topology
did.

DetectLocalNode generalizes the original's ad-hoc hostname-substring
chain ("builder" in hostname, "studio" in hostname, ...) into a
data-driven match over the configured node set.
*/
package config
