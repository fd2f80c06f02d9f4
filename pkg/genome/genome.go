// Package genome provides random access to a reference genome stored
// as FASTA, using a samtools-style .fai index.
//
// The index records, per sequence, its length and byte layout in the
// FASTA file, so a region can be fetched with a single seek instead of
// scanning the file. A missing index is built on open, matching the
// behaviour of samtools faidx.
package genome

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/tfomics/tfomics/pkg/errors"
)

// Offset is the number of bases fetched on either side of a peak.
const Offset = 100

// indexEntry is one line of a .fai index.
type indexEntry struct {
	name      string
	length    int   // bases in the sequence
	start     int64 // byte offset of the first base
	lineBases int   // bases per line
	lineWidth int   // bytes per line, including the newline
}

// Genome is an indexed reference genome.
type Genome struct {
	file    *os.File
	entries map[string]indexEntry
	order   []string
}

// Open opens a FASTA file for random access. The .fai index next to it
// is loaded if present and built otherwise.
func Open(path string) (*Genome, error) {
	indexPath := path + ".fai"
	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		if err := BuildIndex(path); err != nil {
			return nil, err
		}
	}

	entries, order, err := readIndex(indexPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "open genome")
	}

	return &Genome{file: f, entries: entries, order: order}, nil
}

// Close releases the underlying file.
func (g *Genome) Close() error {
	return g.file.Close()
}

// Sequences returns the sequence names in file order.
func (g *Genome) Sequences() []string {
	return g.order
}

// Length returns the number of bases in a sequence.
func (g *Genome) Length(name string) (int, bool) {
	e, ok := g.entries[name]
	return e.length, ok
}

// Region fetches the uppercased bases of [start, end) from the named
// sequence. Coordinates are 0-indexed; end is clamped to the sequence
// length.
func (g *Genome) Region(name string, start, end int) (string, error) {
	e, ok := g.entries[name]
	if !ok {
		return "", errors.New(errors.ErrCodeRegionNotFound, "unknown sequence %q", name)
	}
	if start < 0 || start > end {
		return "", errors.New(errors.ErrCodeInvalidRegion, "invalid region %s:%d-%d", name, start, end)
	}
	if end > e.length {
		end = e.length
	}
	if start >= end {
		return "", nil
	}

	// Byte offset of a base: full lines before it plus the remainder.
	offset := e.start + int64(start/e.lineBases)*int64(e.lineWidth) + int64(start%e.lineBases)

	// Read enough bytes to cover the region including newlines.
	span := end - start
	lines := (start%e.lineBases+span)/e.lineBases + 1
	raw := make([]byte, span+lines*(e.lineWidth-e.lineBases))

	n, err := g.file.ReadAt(raw, offset)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read %s:%d-%d: %w", name, start, end, err)
	}
	raw = raw[:n]

	var sb strings.Builder
	sb.Grow(span)
	for _, c := range raw {
		if c == '\n' || c == '\r' {
			continue
		}
		if sb.Len() == span {
			break
		}
		sb.WriteByte(c)
	}
	if sb.Len() < span {
		return "", errors.New(errors.ErrCodeInvalidRegion,
			"region %s:%d-%d extends past end of sequence", name, start, end)
	}

	return strings.ToUpper(sb.String()), nil
}

// PeakCoords returns the 0-indexed [start, end) coordinates of a region
// centered on a 1-indexed peak position, with Offset bases on either
// side. Peaks close to the start of the sequence are truncated on the
// left and padded on the right so every peak region has the same width
// when possible.
func PeakCoords(peakPosition int) (int, int) {
	start := peakPosition - Offset - 1
	if start < 0 {
		start = 0
	}
	end := peakPosition + Offset
	if min := 2*Offset + 1; end < min {
		end = min
	}
	return start, end
}

// Peak fetches the region around a 1-indexed peak position. When
// expectedBase is non-zero, the base at the peak must match it; a
// mismatch usually means the counts were generated against a different
// genome build.
func (g *Genome) Peak(name string, peakPosition int, expectedBase byte) (string, error) {
	start, end := PeakCoords(peakPosition)
	sequence, err := g.Region(name, start, end)
	if err != nil {
		return "", err
	}

	if expectedBase != 0 {
		at := Offset
		if peakPosition-1 < at {
			at = peakPosition - 1
		}
		if at < 0 || at >= len(sequence) {
			return "", errors.New(errors.ErrCodeInvalidRegion,
				"peak position %s:%d outside sequence", name, peakPosition)
		}
		found := sequence[at]
		if found != expectedBase {
			return "", errors.New(errors.ErrCodeGenomeMismatch,
				"reference genome mismatch at %s:%d: expected %c, found %c",
				name, peakPosition, expectedBase, found)
		}
	}

	return sequence, nil
}

// ApplySNP substitutes a winning allele at the peak offset of a
// sequence fetched with Peak.
func ApplySNP(sequence string, base byte) string {
	if Offset >= len(sequence) {
		return sequence
	}
	return sequence[:Offset] + string(base) + sequence[Offset+1:]
}

// BuildIndex scans a FASTA file and writes the .fai index next to it.
// Sequences must use a uniform line length, except for their final
// line.
func BuildIndex(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileNotFound, err, "open genome")
	}
	defer f.Close()

	out, err := os.Create(path + ".fai")
	if err != nil {
		return errors.Wrap(errors.ErrCodeGenomeIndex, err, "create index")
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	reader := bufio.NewReader(f)

	var (
		cur       indexEntry
		offset    int64
		lastShort bool // saw a line shorter than lineBases
		open      bool
	)

	flush := func() error {
		if !open {
			return nil
		}
		_, err := fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n",
			cur.name, cur.length, cur.start, cur.lineBases, cur.lineWidth)
		return err
	}

	for {
		line, err := reader.ReadString('\n')
		if len(line) == 0 && err != nil {
			break
		}

		lineLen := int64(len(line))
		trimmed := strings.TrimRight(line, "\r\n")

		if strings.HasPrefix(trimmed, ">") {
			if err := flush(); err != nil {
				return err
			}
			name, _, _ := strings.Cut(strings.TrimPrefix(trimmed, ">"), " ")
			cur = indexEntry{name: name, start: offset + lineLen}
			open = true
			lastShort = false
		} else if open && len(trimmed) > 0 {
			if cur.lineBases == 0 {
				cur.lineBases = len(trimmed)
				cur.lineWidth = len(line)
				if !strings.HasSuffix(line, "\n") {
					cur.lineWidth = len(line) + 1
				}
			} else if lastShort || len(trimmed) > cur.lineBases {
				return errors.New(errors.ErrCodeGenomeIndex,
					"ragged FASTA line in sequence %q", cur.name)
			}
			if len(trimmed) < cur.lineBases {
				lastShort = true
			}
			cur.length += len(trimmed)
		}

		offset += lineLen
		if err != nil {
			break
		}
	}

	if err := flush(); err != nil {
		return err
	}
	return w.Flush()
}

// readIndex loads a .fai index.
func readIndex(path string) (map[string]indexEntry, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrCodeGenomeIndex, err, "open index")
	}
	defer f.Close()

	entries := make(map[string]indexEntry)
	var order []string

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) < 5 {
			return nil, nil, errors.New(errors.ErrCodeGenomeIndex, "index line %d malformed", line)
		}

		e := indexEntry{name: fields[0]}
		values := []*int{&e.length, nil, &e.lineBases, &e.lineWidth}
		for i, dst := range values {
			n, err := strconv.ParseInt(fields[i+1], 10, 64)
			if err != nil {
				return nil, nil, errors.Wrap(errors.ErrCodeGenomeIndex, err, "index line %d", line)
			}
			if dst == nil {
				e.start = n
			} else {
				*dst = int(n)
			}
		}

		entries[e.name] = e
		order = append(order, e.name)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}

	return entries, order, nil
}
