package pow

import (
	"sort"
)

// maxSearchSteps bounds the depth first search of a single graph.
const maxSearchSteps = 1 << 22

func uNode(value uint64) uint64 { return value << 1 }
func vNode(value uint64) uint64 { return value<<1 | 1 }

type halfEdge struct {
	edge uint64
	to   uint64
}

// cycleGraph is a small adjacency list graph used to search for cycles of a
// fixed length. It backs the test miner; real mining is done by external
// solvers.
type cycleGraph struct {
	adjacency map[uint64][]halfEdge
	steps     int
}

func newCycleGraph() *cycleGraph {
	return &cycleGraph{adjacency: make(map[uint64][]halfEdge)}
}

func (g *cycleGraph) addEdge(edge, from, to uint64) {
	g.adjacency[from] = append(g.adjacency[from], halfEdge{edge: edge, to: to})
}

// findCycles returns up to maxSols verified proofs of the given length.
// Every cycle is searched from its smallest edge so each is reported once.
func (g *cycleGraph) findCycles(verifier Context, edgeBits uint8, length int, maxSols int) []*Proof {
	var proofs []*Proof
	nodes := make([]uint64, 0, len(g.adjacency))
	for node := range g.adjacency {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	for _, start := range nodes {
		for _, first := range g.adjacency[start] {
			visited := map[uint64]bool{start: true}
			edges := []uint64{first.edge}
			cycle := g.search(start, first.to, first.edge, visited, edges, length)
			if cycle == nil {
				continue
			}
			sort.Slice(cycle, func(i, j int) bool { return cycle[i] < cycle[j] })
			proof := &Proof{EdgeBits: edgeBits, Nonces: cycle}
			if verifier.Verify(proof) != nil || containsProof(proofs, proof) {
				continue
			}
			proofs = append(proofs, proof)
			if len(proofs) >= maxSols {
				return proofs
			}
		}
		if g.steps > maxSearchSteps {
			break
		}
	}
	return proofs
}

func (g *cycleGraph) search(start, node, minEdge uint64, visited map[uint64]bool,
	edges []uint64, length int) []uint64 {

	g.steps++
	if g.steps > maxSearchSteps {
		return nil
	}
	if node == start {
		if len(edges) == length {
			result := make([]uint64, len(edges))
			copy(result, edges)
			return result
		}
		return nil
	}
	if len(edges) >= length || visited[node] {
		return nil
	}
	visited[node] = true
	defer delete(visited, node)
	for _, next := range g.adjacency[node] {
		if next.edge <= minEdge || next.edge == edges[len(edges)-1] {
			continue
		}
		if cycle := g.search(start, next.to, minEdge, visited, append(edges, next.edge), length); cycle != nil {
			return cycle
		}
	}
	return nil
}

func containsProof(proofs []*Proof, proof *Proof) bool {
	for _, other := range proofs {
		if len(other.Nonces) != len(proof.Nonces) {
			continue
		}
		same := true
		for i := range other.Nonces {
			if other.Nonces[i] != proof.Nonces[i] {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}
	return false
}
