package resolver

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/cuemby/clusterrouter/pkg/log"
	"github.com/cuemby/clusterrouter/pkg/metrics"
	"github.com/cuemby/clusterrouter/pkg/types"
)

// Runner executes an external command with an argv list and returns its
// stdout. Every resolver method that shells out goes through this
// interface — never a shell string — both for the injection-safety
// invariant and so tests can fake the external tool without touching the
// real system.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// Prober verifies that an address accepts a real remote-shell login. The
// resolver depends only on this narrow interface; pkg/prober supplies the
// concrete SSH-based implementation.
type Prober interface {
	Probe(ctx context.Context, address string) bool
}

// Resolver implements the hostname-to-address resolution cascade.
type Resolver struct {
	cache   *Cache
	runner  Runner
	prober  Prober
	gateway string
}

// New builds a Resolver. gateway is the well-known address used for local
// interface discovery (CLUSTER_GATEWAY).
func New(cache *Cache, runner Runner, prober Prober, gateway string) *Resolver {
	return &Resolver{cache: cache, runner: runner, prober: prober, gateway: gateway}
}

// Resolve returns a current address for node, or ("", false). isLocal asks
// for the local LAN interface instead of resolving node.Hostname.
// verifyReachability requires an end-to-end shell login before returning.
func (r *Resolver) Resolve(ctx context.Context, node *types.Node, isLocal, verifyReachability bool) (string, bool) {
	logger := log.WithComponent("resolver").With().Str("node_id", node.ID).Logger()

	if isLocal {
		if addr, ok := r.localInterfaceAddress(ctx); ok {
			return addr, true
		}
		if node.FallbackAddr != "" && Valid(node.FallbackAddr) {
			return node.FallbackAddr, true
		}
		return "", false
	}

	if verifyReachability {
		return r.resolveVerified(ctx, node)
	}

	if addr, ok := r.cache.Get(node.Hostname); ok {
		metrics.ResolverCacheHitsTotal.Inc()
		return addr, true
	}
	metrics.ResolverCacheMissesTotal.Inc()

	if addr, ok := r.resolveCascade(ctx, node.Hostname); ok {
		return addr, true
	}

	if node.FallbackAddr != "" && Valid(node.FallbackAddr) {
		logger.Debug().Msg("resolver cascade exhausted, using fallback address")
		return node.FallbackAddr, true
	}
	return "", false
}

// resolveVerified implements the inverted preference order: the fallback
// address is tried first because dynamic resolution on multi-homed hosts
// can return an unreliable interface even when a stable one exists.
func (r *Resolver) resolveVerified(ctx context.Context, node *types.Node) (string, bool) {
	if node.FallbackAddr != "" && Valid(node.FallbackAddr) && r.prober.Probe(ctx, node.FallbackAddr) {
		return node.FallbackAddr, true
	}

	addr, ok := r.resolveCascade(ctx, node.Hostname)
	if ok && r.prober.Probe(ctx, addr) {
		return addr, true
	}
	return "", false
}

func (r *Resolver) resolveCascade(ctx context.Context, hostname string) (string, bool) {
	if hostname == "" {
		return "", false
	}

	if addr, ok := r.cache.Get(hostname); ok {
		return addr, true
	}

	methods := []struct {
		name string
		fn   func(context.Context, string) (string, bool)
	}{
		{"dns", r.systemResolve},
		{"mdns", r.avahiResolve},
		{"hosts", r.getentResolve},
		{"ping", r.pingResolve},
	}

	for _, m := range methods {
		timer := metrics.NewTimer()
		addr, ok := m.fn(ctx, hostname)
		timer.ObserveDurationVec(metrics.ResolverLatency, m.name)
		if ok && Valid(addr) {
			r.cache.Set(hostname, addr)
			return addr, true
		}
	}
	return "", false
}

func (r *Resolver) systemResolve(ctx context.Context, hostname string) (string, bool) {
	addrs, err := net.DefaultResolver.LookupHost(ctx, hostname)
	if err != nil || len(addrs) == 0 {
		return "", false
	}
	for _, a := range addrs {
		if Valid(a) {
			return a, true
		}
	}
	return "", false
}

func (r *Resolver) avahiResolve(ctx context.Context, hostname string) (string, bool) {
	if !strings.HasSuffix(hostname, ".local") {
		return "", false
	}
	out, err := r.runner.Run(ctx, "avahi-resolve", "-n", hostname)
	if err != nil {
		return "", false
	}
	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) < 2 {
		return "", false
	}
	return fields[1], true
}

func (r *Resolver) getentResolve(ctx context.Context, hostname string) (string, bool) {
	out, err := r.runner.Run(ctx, "getent", "hosts", hostname)
	if err != nil {
		return "", false
	}
	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) < 1 {
		return "", false
	}
	return fields[0], true
}

var pingAddrPattern = regexp.MustCompile(`\((\d+\.\d+\.\d+\.\d+)\)`)

func (r *Resolver) pingResolve(ctx context.Context, hostname string) (string, bool) {
	out, err := r.runner.Run(ctx, "ping", "-c", "1", "-W", "1", hostname)
	if err != nil {
		return "", false
	}
	match := pingAddrPattern.FindStringSubmatch(out)
	if len(match) < 2 {
		return "", false
	}
	return match[1], true
}

// localInterfaceAddress asks the OS routing table which source address
// reaches a known external target, falling back to an unconnected UDP
// socket bind when the routing-table probe is unavailable.
func (r *Resolver) localInterfaceAddress(ctx context.Context) (string, bool) {
	if r.gateway != "" {
		if out, err := r.runner.Run(ctx, "ip", "route", "get", r.gateway); err == nil {
			if addr, ok := parseRouteSource(out); ok && Valid(addr) {
				return addr, true
			}
		}
	}

	target := r.gateway
	if target == "" {
		target = "8.8.8.8"
	}
	conn, err := net.DialTimeout("udp", fmt.Sprintf("%s:53", target), 2*time.Second)
	if err != nil {
		return "", false
	}
	defer conn.Close()

	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", false
	}
	addr := localAddr.IP.String()
	if !Valid(addr) {
		return "", false
	}
	return addr, true
}

var routeSrcPattern = regexp.MustCompile(`\bsrc\s+(\d+\.\d+\.\d+\.\d+)`)

func parseRouteSource(out string) (string, bool) {
	match := routeSrcPattern.FindStringSubmatch(out)
	if len(match) < 2 {
		return "", false
	}
	return match[1], true
}
