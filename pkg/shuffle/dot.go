package shuffle

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-graphviz"
)

// ToDOT converts the dinucleotide transition graph of a sequence to
// Graphviz DOT format. Each nucleotide is a node; each directed edge is
// labelled with the number of times the pair occurs in the sequence.
// The resulting DOT string can be rendered with [RenderSVG].
func ToDOT(section string) string {
	transitions := Transitions(strings.ToUpper(section))

	var buf bytes.Buffer
	buf.WriteString("digraph dinucleotides {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=circle, style=filled, fillcolor=white, fontsize=20];\n")
	buf.WriteString("\n")

	froms := make([]string, 0, len(transitions))
	for from := range transitions {
		froms = append(froms, string(from))
	}
	sort.Strings(froms)

	for _, from := range froms {
		counts := make(map[byte]int)
		for _, to := range transitions[from[0]] {
			counts[to]++
		}
		tos := make([]string, 0, len(counts))
		for to := range counts {
			tos = append(tos, string(to))
		}
		sort.Strings(tos)
		for _, to := range tos {
			fmt.Fprintf(&buf, "  %s -> %s [label=\"%d\"];\n", from, to, counts[to[0]])
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(dot string) ([]byte, error) {
	ctx := context.Background()
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}
