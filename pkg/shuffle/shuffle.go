// Package shuffle implements the Altschul-Erikson dinucleotide shuffle.
//
// The shuffle produces a random permutation of a DNA string that
// preserves the exact count of every dinucleotide pair, by constructing
// a new random Eulerian path through the dinucleotide transition graph
// (Altschul & Erickson, Mol Biol Evol 1985,
// https://doi.org/10.1093/oxfordjournals.molbev.a040370).
//
// Shuffled sequences with preserved pair frequencies are the standard
// null model when scoring transcription factor binding motifs: a motif
// that still scores highly against shuffles is not explained by
// dinucleotide composition alone.
package shuffle

import (
	"math/rand"
	"sort"
	"strings"

	"github.com/tfomics/tfomics/pkg/errors"
)

// Nucleotides is the alphabet accepted by the shuffle.
const Nucleotides = "ACGT"

// Shuffle returns a random permutation of section that preserves its
// dinucleotide pair counts. The input is uppercased first; letters
// outside {A, C, G, T} are an error.
//
// The shuffle is deterministic for a given rng. A nil rng uses an
// unseeded source.
func Shuffle(section string, rng *rand.Rand) (string, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	section = strings.ToUpper(section)
	vertices, err := vertexList(section)
	if err != nil {
		return "", err
	}
	if len(section) < 2 {
		return section, nil
	}

	transitions := Transitions(section)
	chosen := pickEdges(section, vertices, transitions, rng)

	// Move the chosen edges to the end of each adjacency list and
	// shuffle everything before them.
	for _, e := range chosen {
		removeFirst(transitions, e.From, e.To)
	}
	for _, v := range vertices {
		list := transitions[v]
		rng.Shuffle(len(list), func(i, j int) { list[i], list[j] = list[j], list[i] })
	}
	for _, e := range chosen {
		transitions[e.From] = append(transitions[e.From], e.To)
	}

	// Walk the graph from the first character, consuming edges in list
	// order. The chosen edges at the tails guarantee the walk is a full
	// Eulerian path ending at the last character.
	var path strings.Builder
	path.Grow(len(section))
	current := section[0]
	path.WriteByte(current)
	for i := 0; i < len(section)-1; i++ {
		next := transitions[current][0]
		transitions[current] = transitions[current][1:]
		path.WriteByte(next)
		current = next
	}

	return path.String(), nil
}

// Edge is a directed edge in the dinucleotide transition graph.
type Edge struct {
	From byte
	To   byte
}

// Transitions builds the adjacency lists of the dinucleotide transition
// graph: Transitions(s)[x] holds every nucleotide that immediately
// follows x in s, with multiplicity.
func Transitions(section string) map[byte][]byte {
	transitions := make(map[byte][]byte, len(Nucleotides))
	for i := 0; i+1 < len(section); i++ {
		transitions[section[i]] = append(transitions[section[i]], section[i+1])
	}
	return transitions
}

// vertexList returns the sorted set of distinct nucleotides in section,
// validating the alphabet. Sorting makes edge selection reproducible
// for a seeded rng.
func vertexList(section string) ([]byte, error) {
	seen := make(map[byte]bool)
	var invalid []byte
	for i := 0; i < len(section); i++ {
		c := section[i]
		if !strings.ContainsRune(Nucleotides, rune(c)) {
			if !seen[c] {
				invalid = append(invalid, c)
			}
			seen[c] = true
			continue
		}
		seen[c] = true
	}
	if len(invalid) > 0 {
		sort.Slice(invalid, func(i, j int) bool { return invalid[i] < invalid[j] })
		return nil, errors.New(errors.ErrCodeInvalidSequence,
			"input contained non-nucleotide letters: %q", string(invalid))
	}

	vertices := make([]byte, 0, len(seen))
	for c := range seen {
		vertices = append(vertices, c)
	}
	sort.Slice(vertices, func(i, j int) bool { return vertices[i] < vertices[j] })
	return vertices, nil
}

// pickEdges randomly selects one outgoing edge for every vertex except
// the last character's, retrying until the selection is connected
// (directly or transitively) to the last character. Those edges become
// the final exit from each vertex during the Eulerian walk.
func pickEdges(section string, vertices []byte, transitions map[byte][]byte, rng *rand.Rand) []Edge {
	last := section[len(section)-1]

	for {
		edges := make([]Edge, 0, len(vertices)-1)
		for _, v := range vertices {
			if v == last {
				continue
			}
			candidates := transitions[v]
			edges = append(edges, Edge{From: v, To: candidates[rng.Intn(len(candidates))]})
		}
		if connectedToLast(edges, vertices, last) {
			return edges
		}
	}
}

// connectedToLast reports whether every vertex reaches the last
// character through the chosen edges.
func connectedToLast(edges []Edge, vertices []byte, last byte) bool {
	connected := make(map[byte]bool, len(vertices))
	connected[last] = true

	// Back-propagate from the last vertex; the longest possible path
	// has len(vertices)-1 hops.
	for range vertices[:len(vertices)-1] {
		for _, e := range edges {
			if connected[e.To] {
				connected[e.From] = true
			}
		}
	}

	for _, v := range vertices {
		if !connected[v] {
			return false
		}
	}
	return true
}

func removeFirst(transitions map[byte][]byte, from, to byte) {
	list := transitions[from]
	for i, c := range list {
		if c == to {
			transitions[from] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}
