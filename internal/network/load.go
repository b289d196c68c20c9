package network

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LoadOptions controls edge-list parsing.
type LoadOptions struct {
	// Name overrides the network name. Defaults to the file stem for LoadFile.
	Name string

	// Directed treats each line "u v" as u influencing v only.
	Directed bool

	// Nodes pre-registers labels 0..Nodes-1 so isolated nodes are kept.
	Nodes int
}

// LoadFile reads an edge list from path.
func LoadFile(path string, opts LoadOptions) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening network: %w", err)
	}
	defer f.Close()

	if opts.Name == "" {
		base := filepath.Base(path)
		opts.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return Load(f, opts)
}

// Load parses an edge list: one edge per line, two integer node identifiers
// separated by whitespace and/or a comma. Blank lines and lines starting with
// '#' are skipped; trailing fields (weights, attribute dicts) are ignored.
func Load(r io.Reader, opts LoadOptions) (*Network, error) {
	b := NewBuilder(opts.Name, opts.Directed)
	b.AddNodes(opts.Nodes)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: expected two node identifiers, got %q", lineNo, line)
		}
		from, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid node %q: %w", lineNo, fields[0], err)
		}
		to, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid node %q: %w", lineNo, fields[1], err)
		}
		b.AddEdge(from, to)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading edge list: %w", err)
	}

	return b.Build()
}
