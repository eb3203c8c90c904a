// Package engine implements pkg/engine.Context, the explicit environment
// object spec.md §9 ("Global state") describes replacing the original
// implementation's "Clixon handle": schema, datastore store, NACM engine,
// plugin registry, notification bus and configuration, threaded as the
// first argument to every top-level operation instead of reached for
// through package-level mutable state.
package engine

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/ncxd/confd/pkg/config"
	"github.com/ncxd/confd/pkg/datastore"
	"github.com/ncxd/confd/pkg/nacm"
	"github.com/ncxd/confd/pkg/notify"
	"github.com/ncxd/confd/pkg/validate"
	"github.com/ncxd/confd/pkg/yang"
)

// Context is the engine's environment: everything a top-level operation
// (get, edit-config, commit, create-subscription, ...) needs, built once
// at startup and passed down explicitly.
type Context struct {
	Config *config.Config
	Schema *yang.Schema
	Store  *datastore.Store
	Notify *notify.Bus

	pipeline *validate.Pipeline

	nacmMu sync.RWMutex
	nacm   *nacm.Engine

	pluginsMu sync.Mutex
	plugins   []validate.PluginHooks
}

// New loads the schema, opens the datastore store, loads the NACM engine
// and returns a ready-to-serve Context. Front-ends (pkg/server) and
// cmd/confd build exactly one of these per process.
func New(ctx context.Context, cfg *config.Config) (*Context, error) {
	schema, err := yang.LoadDir(cfg.Schema.Directories, cfg.Schema.MainModule)
	if err != nil {
		return nil, fmt.Errorf("loading YANG schema: %w", err)
	}
	log.Infof("loaded schema: %d module(s) from %v", len(schema.Modules()), cfg.Schema.Directories)

	store := datastore.NewStore(cfg.Datastore.Directory, schema)
	if err := store.Load(ctx); err != nil {
		return nil, fmt.Errorf("loading datastores: %w", err)
	}

	e := &Context{
		Config:   cfg,
		Schema:   schema,
		Store:    store,
		Notify:   notify.NewBus(),
		pipeline: validate.NewPipeline(schema, store),
	}

	if err := e.reloadNACM(); err != nil {
		return nil, fmt.Errorf("loading NACM configuration: %w", err)
	}

	return e, nil
}

// reloadNACM (re-)builds the NACM engine from its configured source,
// inline or external (spec.md §6 "NACM"). Called at startup and whenever
// a commit touches running's ietf-netconf-acm subtree in inline mode.
func (e *Context) reloadNACM() error {
	var eng *nacm.Engine
	var err error
	switch e.Config.NACM.Mode {
	case config.NACMModeExternal:
		eng, err = nacm.LoadFromFile(e.Config.NACM.File, e.Schema)
	default:
		runningEntry, ok := e.Store.Entry(datastore.Running)
		if !ok {
			return fmt.Errorf("no running datastore entry")
		}
		eng, err = nacm.LoadFromTree(runningEntry.Snapshot(), e.Schema)
	}
	if err != nil {
		return err
	}
	e.nacmMu.Lock()
	e.nacm = eng
	e.nacmMu.Unlock()
	return nil
}

// NACM returns the currently loaded NACM engine.
func (e *Context) NACM() *nacm.Engine {
	e.nacmMu.RLock()
	defer e.nacmMu.RUnlock()
	return e.nacm
}

// RegisterPlugin adds hooks to the ordered plugin registry dispatched by
// every commit's plugin-transaction stage (spec.md §9 "Plugin callbacks").
func (e *Context) RegisterPlugin(hooks validate.PluginHooks) {
	e.pluginsMu.Lock()
	defer e.pluginsMu.Unlock()
	e.plugins = append(e.plugins, hooks)
}

func (e *Context) pluginSnapshot() []validate.PluginHooks {
	e.pluginsMu.Lock()
	defer e.pluginsMu.Unlock()
	out := make([]validate.PluginHooks, len(e.plugins))
	copy(out, e.plugins)
	return out
}
