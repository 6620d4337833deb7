package factory

import (
	"testing"

	"github.com/Lzww0608/ConcordKV-sub001/common"
)

func TestCreateUnrecognizedKindIsParam(t *testing.T) {
	_, err := Create(common.EngineKind("bogus"), Options{})
	if common.ErrorKind(err) != common.KindParam {
		t.Fatalf("expected PARAM for unrecognized kind, got %v", err)
	}
}

func TestCreateEachRecognizedKind(t *testing.T) {
	for _, k := range []common.EngineKind{
		common.EngineArray, common.EngineRBTree, common.EngineBTree,
	} {
		e, err := Create(k, Options{})
		if err != nil {
			t.Fatalf("Create(%s): %v", k, err)
		}
		if err := e.Put([]byte("k"), []byte("v")); err != nil {
			t.Fatalf("%s Put: %v", k, err)
		}
		v, err := e.Get([]byte("k"))
		if err != nil || string(v) != "v" {
			t.Fatalf("%s Get: %v %v", k, v, err)
		}
		e.Close()
	}
}

func TestManagerFixedStrategySelectsCurrent(t *testing.T) {
	m, err := NewManager(Spec{
		Kinds:    []common.EngineKind{common.EngineArray, common.EngineRBTree},
		Strategy: StrategyFixed,
		Current:  common.EngineRBTree,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	e, err := m.Select(WorkloadHint{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if err := e.Put([]byte("x"), []byte("1")); err != nil {
		t.Fatalf("Put via selected engine: %v", err)
	}
	rbe, _ := m.Engine(common.EngineRBTree)
	if v, err := rbe.Get([]byte("x")); err != nil || string(v) != "1" {
		t.Fatalf("expected write to land on the rbtree engine, got %v %v", v, err)
	}
}

func TestManagerLoadBalancedRoundRobins(t *testing.T) {
	m, err := NewManager(Spec{
		Kinds:    []common.EngineKind{common.EngineArray, common.EngineRBTree},
		Strategy: StrategyLoadBalanced,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	seen := map[common.StorageEngine]bool{}
	for i := 0; i < 4; i++ {
		e, err := m.Select(WorkloadHint{})
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		seen[e] = true
	}
	if len(seen) != 2 {
		t.Fatalf("expected round-robin to visit both engines, saw %d distinct", len(seen))
	}
}

func TestManagerAdaptivePrefersOrderedEngineForRangeQuery(t *testing.T) {
	m, err := NewManager(Spec{
		Kinds:    []common.EngineKind{common.EngineArray, common.EngineBTree},
		Strategy: StrategyAdaptive,
		Current:  common.EngineArray,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer m.Close()

	e, err := m.Select(WorkloadHint{RangeQuery: true})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	bte, _ := m.Engine(common.EngineBTree)
	if e != bte {
		t.Fatalf("expected adaptive strategy to route range queries to the btree engine")
	}
}

func TestManagerReloadSwapsEngineSet(t *testing.T) {
	m, err := NewManager(Spec{
		Kinds:    []common.EngineKind{common.EngineArray},
		Strategy: StrategyFixed,
		Current:  common.EngineArray,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if err := m.Reload(Spec{
		Kinds:    []common.EngineKind{common.EngineRBTree},
		Strategy: StrategyFixed,
		Current:  common.EngineRBTree,
	}); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	defer m.Close()

	if _, ok := m.Engine(common.EngineArray); ok {
		t.Fatalf("expected array engine to be gone after reload")
	}
	if _, ok := m.Engine(common.EngineRBTree); !ok {
		t.Fatalf("expected rbtree engine to be live after reload")
	}
}
