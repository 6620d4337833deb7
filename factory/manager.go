package factory

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Lzww0608/ConcordKV-sub001/common"
)

// Strategy selects which engine serves a given operation when a Manager
// owns more than one (spec §4.7).
type Strategy string

const (
	StrategyFixed        Strategy = "fixed"
	StrategyAdaptive     Strategy = "adaptive"
	StrategyLoadBalanced Strategy = "load_balanced"
)

// WorkloadHint is the adaptive strategy's per-operation steer: callers
// that know the shape of the operation they're about to issue pass it
// along so Select can route to the engine best suited for it.
type WorkloadHint struct {
	RangeQuery bool // prefer an ordered engine (btree, rbtree, lsm)
	WriteHeavy bool // prefer the LSM's amortized write path
}

// Spec describes the desired set of live engines, which one is "current"
// under the fixed strategy, and which strategy Select uses.
type Spec struct {
	Kinds    []common.EngineKind
	Options  Options
	Strategy Strategy
	Current  common.EngineKind
}

// Manager owns a set of pre-constructed engines and picks among them per
// Spec.Strategy (spec §4.7).
type Manager struct {
	mu       sync.RWMutex
	engines  map[common.EngineKind]common.StorageEngine
	kinds    []common.EngineKind // stable order, for round-robin
	strategy Strategy
	current  common.EngineKind
	rrIndex  atomic.Uint64
}

// NewManager constructs every engine spec.Kinds names and returns a
// Manager ready to Select against them. On any construction error, every
// engine already created is torn down and the error is returned.
func NewManager(spec Spec) (*Manager, error) {
	engines, kinds, err := buildEngines(spec)
	if err != nil {
		return nil, err
	}
	return &Manager{
		engines:  engines,
		kinds:    kinds,
		strategy: spec.Strategy,
		current:  spec.Current,
	}, nil
}

func buildEngines(spec Spec) (map[common.EngineKind]common.StorageEngine, []common.EngineKind, error) {
	engines := make(map[common.EngineKind]common.StorageEngine, len(spec.Kinds))
	kinds := append([]common.EngineKind(nil), spec.Kinds...)
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	for _, k := range kinds {
		e, err := Create(k, spec.Options)
		if err != nil {
			for _, built := range engines {
				Destroy(built)
			}
			return nil, nil, err
		}
		engines[k] = e
	}
	return engines, kinds, nil
}

// Select returns the engine that should serve an operation matching
// hint, per the manager's configured strategy.
func (m *Manager) Select(hint WorkloadHint) (common.StorageEngine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.kinds) == 0 {
		return nil, common.NewError(common.KindInvalidState, "manager has no live engines")
	}

	switch m.strategy {
	case StrategyAdaptive:
		return m.engines[m.adaptivePick(hint)], nil
	case StrategyLoadBalanced:
		return m.engines[m.roundRobinPick()], nil
	default: // StrategyFixed
		if e, ok := m.engines[m.current]; ok {
			return e, nil
		}
		return nil, common.NewError(common.KindInvalidState, "fixed strategy's current engine is not live")
	}
}

// adaptivePick routes range-heavy workloads to an ordered engine and
// write-heavy workloads to the LSM, falling back to whichever kind is
// actually live.
func (m *Manager) adaptivePick(hint WorkloadHint) common.EngineKind {
	prefer := func(candidates ...common.EngineKind) (common.EngineKind, bool) {
		for _, k := range candidates {
			if _, ok := m.engines[k]; ok {
				return k, true
			}
		}
		return "", false
	}

	if hint.WriteHeavy {
		if k, ok := prefer(common.EngineLSM, common.EngineHash, common.EngineArray); ok {
			return k
		}
	}
	if hint.RangeQuery {
		if k, ok := prefer(common.EngineBTree, common.EngineLSM, common.EngineRBTree); ok {
			return k
		}
	}
	if k, ok := prefer(m.current); ok {
		return k
	}
	return m.kinds[0]
}

// roundRobinPick cycles through every live engine. The index is a
// dedicated atomic counter rather than a plain field guarded by m.mu,
// since Select only takes the manager's read lock and concurrent
// round-robin callers must still see distinct, non-racing indices.
func (m *Manager) roundRobinPick() common.EngineKind {
	i := m.rrIndex.Add(1) - 1
	return m.kinds[i%uint64(len(m.kinds))]
}

// Engine returns the live engine for kind, or ok=false if it is not
// currently part of the managed set.
func (m *Manager) Engine(kind common.EngineKind) (common.StorageEngine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.engines[kind]
	return e, ok
}

// Reload parses newSpec's desired engine set, constructs every engine it
// names, and atomically swaps the active set under the manager's write
// lock (spec §4.7: "create/destroy engines to match, then atomically
// swap the active set"). The superseded engines are closed only after
// the swap, so in-flight Select/Engine callers never observe a half-torn
// -down set.
func (m *Manager) Reload(newSpec Spec) error {
	newEngines, newKinds, err := buildEngines(newSpec)
	if err != nil {
		return err
	}

	m.mu.Lock()
	oldEngines := m.engines
	m.engines = newEngines
	m.kinds = newKinds
	m.strategy = newSpec.Strategy
	m.current = newSpec.Current
	m.rrIndex.Store(0)
	m.mu.Unlock()

	for kind, e := range oldEngines {
		if newEngines[kind] == e {
			continue
		}
		Destroy(e)
	}
	return nil
}

// Close tears down every engine the manager owns.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for _, e := range m.engines {
		if err := Destroy(e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.engines = nil
	m.kinds = nil
	return firstErr
}
