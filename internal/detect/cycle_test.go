package detect

import (
	"testing"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
)

func buildGraph(edges [][2]string) *graph.Graph {
	g := graph.New()
	for _, e := range edges {
		g.AddTransaction(e[0], e[1], 100, nil)
	}
	return g
}

func ringKeys(rings []domain.Ring) map[string]domain.Ring {
	out := make(map[string]domain.Ring, len(rings))
	for _, r := range rings {
		out[memberKey(r.Members)] = r
	}
	return out
}

func TestCycleDetector(t *testing.T) {
	d := NewCycleDetector(domain.DefaultDetectionConfig())

	t.Run("Triangle", func(t *testing.T) {
		g := buildGraph([][2]string{
			{"A", "B"}, {"B", "C"}, {"C", "A"},
			{"X", "Y"}, // background edge
		})
		rings, diag := d.Detect(g)

		if diag.Failed {
			t.Fatalf("detector failed: %s", diag.Detail)
		}
		if len(rings) != 1 {
			t.Fatalf("expected 1 ring, got %d", len(rings))
		}
		if rings[0].Pattern != domain.PatternCycle {
			t.Errorf("expected cycle pattern, got %s", rings[0].Pattern)
		}
		if memberKey(rings[0].Members) != memberKey([]string{"A", "B", "C"}) {
			t.Errorf("expected members A,B,C, got %v", rings[0].Members)
		}
		if diag.Rings != 1 {
			t.Errorf("diagnostic ring count: expected 1, got %d", diag.Rings)
		}
	})

	t.Run("TraversalOrder", func(t *testing.T) {
		g := buildGraph([][2]string{
			{"A", "B"}, {"B", "C"}, {"C", "A"},
		})
		rings, _ := d.Detect(g)

		if len(rings) != 1 {
			t.Fatalf("expected 1 ring, got %d", len(rings))
		}
		want := []string{"A", "B", "C"}
		for i, id := range want {
			if rings[0].Members[i] != id {
				t.Fatalf("expected cyclic order %v, got %v", want, rings[0].Members)
			}
		}
	})

	t.Run("TwoCycleExcluded", func(t *testing.T) {
		g := buildGraph([][2]string{
			{"A", "B"}, {"B", "A"},
		})
		rings, _ := d.Detect(g)
		if len(rings) != 0 {
			t.Errorf("reciprocal payments must not form a ring, got %v", rings)
		}
	})

	t.Run("LongCycleExcluded", func(t *testing.T) {
		// Six hops exceeds the default maximum of five.
		g := buildGraph([][2]string{
			{"A", "B"}, {"B", "C"}, {"C", "D"}, {"D", "E"}, {"E", "F"}, {"F", "A"},
		})
		rings, _ := d.Detect(g)
		if len(rings) != 0 {
			t.Errorf("six-hop cycle must be excluded, got %v", rings)
		}
	})

	t.Run("FiveCycleIncluded", func(t *testing.T) {
		g := buildGraph([][2]string{
			{"A", "B"}, {"B", "C"}, {"C", "D"}, {"D", "E"}, {"E", "A"},
		})
		rings, _ := d.Detect(g)
		if len(rings) != 1 || len(rings[0].Members) != 5 {
			t.Errorf("expected one 5-member ring, got %v", rings)
		}
	})

	t.Run("SelfLoopExcluded", func(t *testing.T) {
		g := buildGraph([][2]string{
			{"A", "A"},
		})
		rings, _ := d.Detect(g)
		if len(rings) != 0 {
			t.Errorf("self-transfer must not form a ring, got %v", rings)
		}
	})

	t.Run("OverlappingCycles", func(t *testing.T) {
		// Two triangles sharing the edge A->B.
		g := buildGraph([][2]string{
			{"A", "B"}, {"B", "C"}, {"C", "A"},
			{"B", "D"}, {"D", "A"},
		})
		rings, _ := d.Detect(g)

		byKey := ringKeys(rings)
		if len(byKey) != 2 {
			t.Fatalf("expected 2 distinct rings, got %v", rings)
		}
		if _, ok := byKey[memberKey([]string{"A", "B", "C"})]; !ok {
			t.Error("missing ring A,B,C")
		}
		if _, ok := byKey[memberKey([]string{"A", "B", "D"})]; !ok {
			t.Error("missing ring A,B,D")
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		g := buildGraph([][2]string{
			{"A", "B"}, {"B", "C"}, {"C", "A"},
			{"C", "D"}, {"D", "B"},
		})
		first, _ := d.Detect(g)
		second, _ := d.Detect(g)

		if len(first) != len(second) {
			t.Fatalf("run lengths differ: %d vs %d", len(first), len(second))
		}
		for i := range first {
			if memberKey(first[i].Members) != memberKey(second[i].Members) {
				t.Errorf("ring %d differs between runs: %v vs %v",
					i, first[i].Members, second[i].Members)
			}
		}
	})
}

func TestElementaryCircuits(t *testing.T) {
	t.Run("DisjointComponents", func(t *testing.T) {
		g := buildGraph([][2]string{
			{"A", "B"}, {"B", "A"},
			{"X", "Y"}, {"Y", "Z"}, {"Z", "X"},
		})
		var count2, count3 int
		elementaryCircuits(g, func(cycle []string) {
			switch len(cycle) {
			case 2:
				count2++
			case 3:
				count3++
			default:
				t.Errorf("unexpected cycle %v", cycle)
			}
		})
		if count2 != 1 || count3 != 1 {
			t.Errorf("expected one 2-circuit and one 3-circuit, got %d and %d",
				count2, count3)
		}
	})

	t.Run("EachCircuitOnce", func(t *testing.T) {
		g := buildGraph([][2]string{
			{"A", "B"}, {"B", "C"}, {"C", "A"},
		})
		seen := make(map[string]int)
		elementaryCircuits(g, func(cycle []string) {
			seen[memberKey(cycle)]++
		})
		for key, n := range seen {
			if n != 1 {
				t.Errorf("circuit %q emitted %d times", key, n)
			}
		}
	})
}
