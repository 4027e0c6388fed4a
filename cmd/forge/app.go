package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nstogner/forge/pkg/config"
	"github.com/nstogner/forge/pkg/generate"
	"github.com/nstogner/forge/pkg/history"
	"github.com/nstogner/forge/pkg/history/sqlite"
	"github.com/nstogner/forge/pkg/model"
	"github.com/nstogner/forge/pkg/model/gemini"
	"github.com/nstogner/forge/pkg/model/openai"
	"github.com/nstogner/forge/pkg/orchestrator"
	"github.com/nstogner/forge/pkg/safety"
	"github.com/nstogner/forge/pkg/sandbox"
	"github.com/nstogner/forge/pkg/sandbox/docker"
)

// app holds the wired services shared by every command.
type app struct {
	cfg          *config.Config
	flags        *config.Flags
	registry     *model.Registry
	history      history.Log
	sandbox      sandbox.Manager
	generator    *generate.Service
	orchestrator *orchestrator.Orchestrator

	closers []func() error
}

// newApp wires providers, history, the optional sandbox and the services on
// top of them. Close releases everything it opened.
func newApp(ctx context.Context, cfg *config.Config, withSandbox bool) (*app, error) {
	a := &app{cfg: cfg, flags: config.NewFlags(cfg.Flags)}

	a.registry = model.NewRegistry(cfg.Models.Catalog)
	if key := cfg.Providers.OpenAI.APIKey; key != "" {
		a.registry.Register(openai.New(key, cfg.Providers.OpenAI.BaseURL))
	}
	if key := cfg.Providers.Gemini.APIKey; key != "" {
		p, err := gemini.New(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("initializing gemini provider: %w", err)
		}
		a.registry.Register(p)
	}
	if len(a.registry.Providers()) == 0 {
		return nil, errors.New("no model provider configured: set OPENAI_API_KEY or GEMINI_API_KEY")
	}
	slog.Debug("Model providers registered", "providers", a.registry.Providers())

	if path := cfg.History.DBPath; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		hist, err := sqlite.New(path, cfg.History.Capacity)
		if err != nil {
			return nil, fmt.Errorf("initializing history: %w", err)
		}
		a.history = hist
		a.closers = append(a.closers, hist.Close)
	} else {
		a.history = history.NewRing(cfg.History.Capacity)
	}

	if withSandbox && cfg.Sandbox.Enabled {
		mgr, err := docker.New(docker.Options{
			Image:   cfg.Sandbox.Image,
			Workdir: cfg.Sandbox.Workdir,
			IdleTTL: cfg.GetIdleTTL(),
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("initializing sandbox manager: %w", err)
		}
		a.sandbox = mgr
		a.closers = append(a.closers, mgr.Close)
	}

	gen := generate.NewGenerator(a.registry, cfg.Models, a.flags)
	gate := safety.New(a.registry, cfg.Models.Safety)
	a.generator = generate.NewService(gen, gate, a.history, a.flags)
	a.orchestrator = orchestrator.New(a.registry, cfg.Models.Default, a.history)
	return a, nil
}

// runner returns the sandbox as a command runner, or nil when disabled.
func (a *app) runner() sandbox.Runner {
	if a.sandbox == nil {
		return nil
	}
	return a.sandbox
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
