package main

import (
	"fmt"
	"time"

	"github.com/cuemby/clusterrouter/pkg/aggregator"
	"github.com/cuemby/clusterrouter/pkg/config"
	"github.com/cuemby/clusterrouter/pkg/executor"
	"github.com/cuemby/clusterrouter/pkg/fanout"
	"github.com/cuemby/clusterrouter/pkg/prober"
	"github.com/cuemby/clusterrouter/pkg/resolver"
	"github.com/cuemby/clusterrouter/pkg/store"
	"github.com/cuemby/clusterrouter/pkg/taskrouter"
	"github.com/cuemby/clusterrouter/pkg/toolsurface"
)

// waitTimeout bounds how long clusterctl will wait for a submitted task to
// reach a terminal state, mirroring the original deployment's 300-second
// result wait.
const waitTimeout = 300 * time.Second

// deps bundles every component clusterctl needs, all wired against one
// loaded configuration and one open store.
type deps struct {
	cfg     *config.Config
	store   *store.Store
	surface *toolsurface.Surface
}

func wire() (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("opening task store: %w", err)
	}

	cache := resolver.NewCache(cfg.IPCacheTTL, resolver.SystemClock{})
	prb := prober.New(prober.ExecRunner{}, cfg.SSH)
	res := resolver.New(cache, resolver.ExecRunner{}, prb, cfg.Gateway)

	exec := executor.New(res, executor.SSHRunner{}, cfg.SSH)
	tr := taskrouter.New(cfg, st, exec)
	agg := aggregator.New(res, aggregator.SSHRunner{}, cfg, cfg.StatusTimeout)
	fan := fanout.New(taskrouter.FanoutAdapter{Executor: exec, LocalNodeID: cfg.LocalNodeID}, cfg.Nodes, cfg.NodeOrder)

	surface := toolsurface.New(cfg, tr, exec, agg, fan, cfg.CmdTimeout, waitTimeout)

	return &deps{cfg: cfg, store: st, surface: surface}, nil
}
