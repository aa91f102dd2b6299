/*
Package resolver maps a node's logical identifier to a current network
address: the system resolver, an mDNS helper, the hosts database, and a
last-resort ICMP probe, in that order, stopping at the first address that
passes the validity filter (Valid). Successful lookups are cached with a
TTL (Cache); the cache is unsynchronized against the network but its own
state is mutex-guarded for concurrent callers.

Every external tool invocation goes through the Runner interface using an
explicit argv list — never a shell string — so hostnames and addresses can
never be interpreted by a local shell.

When a caller demands verified reachability, the preference order inverts:
the node's configured fallback address is tried first (and checked with
Prober), since dynamic resolution on multi-homed hosts can return an
unreliable interface even when a stable one exists.
*/
package resolver
