// Package validate implements the six-stage validate/commit pipeline of
// spec.md §4.F: structural, type, reference, when/must, plugin
// transaction, and atomic swap, run in order with the reference tree
// restored on any failure.
package validate

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/ncxd/confd/pkg/datastore"
	"github.com/ncxd/confd/pkg/netconf"
	"github.com/ncxd/confd/pkg/objtree"
	"github.com/ncxd/confd/pkg/yang"
)

// Stage names one of the six pipeline stages, carried on Result so a
// front-end can report which stage rejected a commit.
type Stage int

const (
	StageStructural Stage = iota
	StageType
	StageReference
	StageWhenMust
	StagePluginTransaction
	StageAtomicSwap
)

func (s Stage) String() string {
	switch s {
	case StageStructural:
		return "structural"
	case StageType:
		return "type"
	case StageReference:
		return "reference"
	case StageWhenMust:
		return "when-must"
	case StagePluginTransaction:
		return "plugin-transaction"
	case StageAtomicSwap:
		return "atomic-swap"
	}
	return "unknown"
}

// Result is what Pipeline.Run returns: the stage that ran last (the
// failing one; on success StageAtomicSwap from Run, StageWhenMust from
// Validate and ValidateTree) and any errors it found.
type Result struct {
	Stage  Stage
	Errors []*netconf.RPCError
}

func (r *Result) Ok() bool { return len(r.Errors) == 0 }

// PluginHooks is the capability record spec.md §9 describes a plugin as
// registering: a named phase dispatched in registration order, aborted in
// reverse order on the first failing plugin (spec.md §4.F stage 5).
type PluginHooks struct {
	Name       string
	OnBegin    func(ctx context.Context, candidate *objtree.Tree) error
	OnValidate func(ctx context.Context, candidate *objtree.Tree) error
	OnComplete func(ctx context.Context, candidate *objtree.Tree) error
	OnCommit   func(ctx context.Context, candidate *objtree.Tree) error
	OnAbort    func(ctx context.Context)
}

// Pipeline runs the six commit stages against one schema and datastore
// store.
type Pipeline struct {
	Schema *yang.Schema
	Store  *datastore.Store
}

// NewPipeline builds a Pipeline bound to schema and store.
func NewPipeline(schema *yang.Schema, store *datastore.Store) *Pipeline {
	return &Pipeline{Schema: schema, Store: store}
}

// Run validates candidateName against referenceName and, on success,
// atomically swaps candidateName's tree into referenceName's entry —
// exactly the "candidate becomes running" flow of RFC 6241 §8.3.4's
// <commit>. Per the tmp-datastore Open Question (SPEC_FULL.md, recorded
// in DESIGN.md), neither name may be datastore.Tmp.
func (p *Pipeline) Run(ctx context.Context, candidateName, referenceName datastore.DBName, plugins []PluginHooks) (*Result, error) {
	if candidateName == datastore.Tmp || referenceName == datastore.Tmp {
		return nil, netconf.New(netconf.ErrorTypeProtocol, netconf.ErrorTagOperationNotSupported,
			"the tmp datastore cannot participate in validate/commit")
	}

	candEntry, ok := p.Store.Entry(candidateName)
	if !ok {
		return nil, fmt.Errorf("unknown datastore %q", candidateName)
	}
	if _, ok := p.Store.Entry(referenceName); !ok {
		return nil, fmt.Errorf("unknown datastore %q", referenceName)
	}
	candidate := candEntry.Snapshot()

	if res := p.runStructural(candidate); !res.Ok() {
		return res, nil
	}
	if res := p.runType(candidate); !res.Ok() {
		return res, nil
	}
	if res := p.runReference(candidate); !res.Ok() {
		return res, nil
	}
	if res := p.runWhenMust(candidate); !res.Ok() {
		return res, nil
	}
	if res, err := p.runPluginTransaction(ctx, candidate, plugins); err != nil || !res.Ok() {
		return res, err
	}

	if err := p.Store.Replace(referenceName, candidate, "commit"); err != nil {
		return &Result{Stage: StageAtomicSwap, Errors: []*netconf.RPCError{
			netconf.Wrap(netconf.ErrorTypeApplication, netconf.ErrorTagOperationFailed, err, "atomic swap failed"),
		}}, nil
	}
	log.Infof("commit %s -> %s succeeded", candidateName, referenceName)
	return &Result{Stage: StageAtomicSwap}, nil
}

// Validate runs the content-validation stages (structural, type,
// reference, when/must) against name without a plugin transaction or
// atomic swap, matching RFC 6241 §8.6's <validate> operation: it reports
// whether a datastore's content is valid without committing anything.
func (p *Pipeline) Validate(name datastore.DBName) (*Result, error) {
	if name == datastore.Tmp {
		return nil, netconf.New(netconf.ErrorTypeProtocol, netconf.ErrorTagOperationNotSupported,
			"the tmp datastore cannot participate in validate/commit")
	}
	entry, ok := p.Store.Entry(name)
	if !ok {
		return nil, fmt.Errorf("unknown datastore %q", name)
	}
	return p.ValidateTree(entry.Snapshot()), nil
}

// ValidateTree runs the same four content-validation stages as Validate
// directly against an in-memory tree, without reading it from the store
// first. <edit-config>'s test-then-set and test-only test options
// (spec.md §4.E) need this: the tree under test is a private merge result
// that may never be persisted, so it has no datastore name to validate by.
func (p *Pipeline) ValidateTree(tree *objtree.Tree) *Result {
	if res := p.runStructural(tree); !res.Ok() {
		return res
	}
	if res := p.runType(tree); !res.Ok() {
		return res
	}
	if res := p.runReference(tree); !res.Ok() {
		return res
	}
	if res := p.runWhenMust(tree); !res.Ok() {
		return res
	}
	return &Result{Stage: StageWhenMust}
}
