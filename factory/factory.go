// Package factory implements the spec's engine factory and manager (spec
// §4.7): a string-to-engine dispatch table plus a manager that owns a
// set of pre-constructed engines, selects among them per a configured
// strategy, and hot-reloads its active set from a new configuration.
//
// Grounded on the teacher's cmd/demo/main.go and cmd/benchmark/main.go,
// which both hand-construct a single engine from a literal Config; this
// package generalizes that into a real kind-keyed factory plus manager.
package factory

import (
	"github.com/Lzww0608/ConcordKV-sub001/arrayengine"
	"github.com/Lzww0608/ConcordKV-sub001/btree"
	"github.com/Lzww0608/ConcordKV-sub001/common"
	"github.com/Lzww0608/ConcordKV-sub001/hashengine"
	"github.com/Lzww0608/ConcordKV-sub001/lsm"
	"github.com/Lzww0608/ConcordKV-sub001/rbtree"
)

// Options carries the per-engine-kind configuration Create needs. Only
// the section matching the requested kind is consulted.
type Options struct {
	BTree btree.Config
	Hash  hashengine.Config
	LSM   lsm.Config
}

// Create dispatches on kind and returns a freshly constructed engine
// implementing common.StorageEngine. An unrecognized kind returns PARAM
// (spec §4.7).
func Create(kind common.EngineKind, opts Options) (common.StorageEngine, error) {
	switch kind {
	case common.EngineArray:
		return arrayengine.New(), nil
	case common.EngineHash:
		return hashengine.New(opts.Hash)
	case common.EngineRBTree:
		return rbtree.New(), nil
	case common.EngineBTree:
		return btree.New(opts.BTree)
	case common.EngineLSM:
		return lsm.NewAdapter(opts.LSM)
	default:
		return nil, common.NewError(common.KindParam, "unrecognized engine kind: "+string(kind))
	}
}

// Destroy tears down engine's private state after moving its owning
// state to SHUTDOWN. Every concrete engine's Close is idempotent and
// already performs this; Destroy exists so manager code has one call
// site to evolve independently of Close's per-engine signature.
func Destroy(e common.StorageEngine) error {
	if e == nil {
		return nil
	}
	return e.Close()
}
