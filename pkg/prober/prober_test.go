package prober

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cuemby/clusterrouter/pkg/config"
	"github.com/stretchr/testify/assert"
)

type scriptedRunner struct {
	// results[i] is returned on the i-th call (0-indexed); calls beyond
	// len(results) repeat the last entry.
	results []error
	calls   int
}

func (r *scriptedRunner) Run(ctx context.Context, name string, args ...string) error {
	idx := r.calls
	if idx >= len(r.results) {
		idx = len(r.results) - 1
	}
	r.calls++
	return r.results[idx]
}

func testSSH() config.SSH {
	return config.SSH{
		User:           "cluster",
		Timeout:        2 * time.Second,
		ConnectTimeout: 1 * time.Second,
		Retries:        3,
	}
}

func TestProbeSucceedsOnFirstAttempt(t *testing.T) {
	runner := &scriptedRunner{results: []error{nil}}
	p := New(runner, testSSH())

	ok := p.Probe(context.Background(), "192.168.1.10")

	assert.True(t, ok)
	assert.Equal(t, 1, runner.calls)
}

func TestProbeRetriesThenSucceeds(t *testing.T) {
	orig := Backoff
	Backoff = time.Millisecond
	defer func() { Backoff = orig }()

	runner := &scriptedRunner{results: []error{fmt.Errorf("connection refused"), nil}}
	p := New(runner, testSSH())

	ok := p.Probe(context.Background(), "192.168.1.10")

	assert.True(t, ok)
	assert.Equal(t, 2, runner.calls)
}

func TestProbeFailsAfterExhaustingRetries(t *testing.T) {
	orig := Backoff
	Backoff = time.Millisecond
	defer func() { Backoff = orig }()

	runner := &scriptedRunner{results: []error{fmt.Errorf("unreachable")}}
	p := New(runner, testSSH())

	ok := p.Probe(context.Background(), "192.168.1.10")

	assert.False(t, ok)
	assert.Equal(t, 3, runner.calls)
}

func TestProbeHonorsZeroRetriesAsOne(t *testing.T) {
	runner := &scriptedRunner{results: []error{nil}}
	ssh := testSSH()
	ssh.Retries = 0
	p := New(runner, ssh)

	ok := p.Probe(context.Background(), "192.168.1.10")

	assert.True(t, ok)
	assert.Equal(t, 1, runner.calls)
}

func TestProbeStopsEarlyWhenContextCanceled(t *testing.T) {
	orig := Backoff
	Backoff = 50 * time.Millisecond
	defer func() { Backoff = orig }()

	runner := &scriptedRunner{results: []error{fmt.Errorf("first fails")}}
	p := New(runner, testSSH())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok := p.Probe(ctx, "192.168.1.10")

	assert.False(t, ok)
	assert.Equal(t, 1, runner.calls)
}
