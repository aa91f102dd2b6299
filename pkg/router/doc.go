/*
Package router filters candidate nodes by hard requirements (os, arch,
capabilities), scores the survivors, and picks the maximum. Specialty match
contributes an order of
magnitude more than node priority, and a large penalty is applied to the
local node so that, absent a requirement pinning work locally, remote
peers are always preferred.

Ties break by the caller-supplied iteration order, which must be stable
across calls for routing decisions to be reproducible; pkg/config builds
that order once at load time.
*/
package router
