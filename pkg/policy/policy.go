// Package policy implements the command policy: validating a command
// string against a hard blocklist, and classifying whether a command
// should be offloaded to a peer or kept local. Both functions are pure
// (or close to it — ShouldOffload takes an injected load sample) so they
// stay unit-testable without shelling out or touching the network.
package policy

import (
	"regexp"
	"strings"

	"github.com/cuemby/clusterrouter/pkg/config"
)

// LoadSample is the local load reading consulted by ShouldOffload. It is
// supplied by the caller (normally sourced from pkg/aggregator's local
// sampler) rather than read directly, keeping this package side-effect-free.
type LoadSample struct {
	CPUPercent float64
	LoadAvg1   float64
	MemPercent float64
}

// Overloaded reports whether any of the sample's three readings exceeds its
// configured threshold.
func (s LoadSample) Overloaded(t config.Thresholds) bool {
	return s.CPUPercent > t.CPUPercent || s.LoadAvg1 > t.LoadAvg1 || s.MemPercent > t.MemPercent
}

var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*(sudo\s+)?rm\s+-rf\s+/\s*$`),
	regexp.MustCompile(`^\s*(sudo\s+)?rm\s+-rf\s+/\*\s*$`),
	regexp.MustCompile(`dd\s+if=/dev/(zero|random|urandom)\s+of=/dev/(sd|nvme|hd)\w*`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\|:&\s*\}\s*;\s*:`),
}

// Validate rejects a command if it is empty/whitespace-only or matches one
// of the hard blocklist patterns (recursive deletion of root, a raw-copy
// write to a block device, or the classical fork bomb). Everything else —
// shell metacharacters, arbitrary binaries, pipes, redirection — is
// permitted; this is the only rejection authority in the system.
func Validate(command string) (bool, string) {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return false, "command is empty"
	}
	for _, p := range dangerousPatterns {
		if p.MatchString(command) {
			return false, "command matches a dangerous pattern and was rejected"
		}
	}
	return true, ""
}

// ShouldOffload classifies a command as a candidate for remote dispatch.
// A command offloads if it matches a configured "heavy" pattern, or if the
// local node is overloaded. It stays local if it matches a "local-trivial"
// prefix and the node is not overloaded. Heavy match takes priority over
// trivial match so e.g. "find" style commands offload regardless of their
// prefix.
func ShouldOffload(command string, patterns config.Patterns, sample LoadSample, thresholds config.Thresholds) bool {
	lower := strings.ToLower(command)

	for _, p := range patterns.Heavy {
		if strings.Contains(lower, p) {
			return true
		}
	}

	overloaded := sample.Overloaded(thresholds)

	for _, p := range patterns.Trivial {
		if strings.HasPrefix(lower, p) {
			return overloaded
		}
	}

	return overloaded
}
