package graph

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReadEdgeList parses whitespace separated "u v c0 c1 c2" lines with 1-indexed
// node ids. Blank lines and lines starting with '#' are skipped. The node
// count is the largest id seen.
func ReadEdgeList(r io.Reader) (int, []RawEdge, error) {
	var raw []RawEdge
	n := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2+NumActions {
			return 0, nil, fmt.Errorf("%w: line %d: expected %d fields, got %d",
				ErrMalformedInput, lineNo, 2+NumActions, len(fields))
		}

		var vals [2 + NumActions]int
		for i, f := range fields {
			v, err := strconv.Atoi(f)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: line %d: %q is not an integer", ErrMalformedInput, lineNo, f)
			}
			vals[i] = v
		}
		if vals[0] < 1 || vals[1] < 1 {
			return 0, nil, fmt.Errorf("%w: line %d: ids are 1-indexed, got %d %d",
				ErrNodeOutOfRange, lineNo, vals[0], vals[1])
		}

		e := RawEdge{Src: vals[0] - 1, Dst: vals[1] - 1}
		for a := 0; a < NumActions; a++ {
			if vals[2+a] < 0 {
				return 0, nil, fmt.Errorf("%w: line %d: count %d", ErrNegativeValue, lineNo, vals[2+a])
			}
			e.Counts[a] = vals[2+a]
		}
		raw = append(raw, e)
		n = max(n, vals[0], vals[1])
	}
	if err := scanner.Err(); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return n, raw, nil
}

// LoadEdgeList reads an edge list and builds its CSR graph.
func LoadEdgeList(ctx context.Context, r io.Reader, threads int) (*CSRGraph, error) {
	n, raw, err := ReadEdgeList(r)
	if err != nil {
		return nil, err
	}
	return Build(ctx, n, raw, threads)
}

// LoadEdgeListFile opens path and calls LoadEdgeList.
func LoadEdgeListFile(ctx context.Context, path string, threads int) (*CSRGraph, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open graph file %s: %w", path, err)
	}
	defer file.Close()

	g, err := LoadEdgeList(ctx, file, threads)
	if err != nil {
		return nil, fmt.Errorf("graph file %s: %w", path, err)
	}
	return g, nil
}

// LoadInterests reads the interest CSV for a graph of n nodes. The header
// row fixes the dimension (its column count minus the id column); every
// following row is "uid,v1,...,vD" with a 1-indexed uid. Nodes without a row
// keep an all-zero vector.
func LoadInterests(r io.Reader, n int) (*InterestMatrix, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: interest file has no header", ErrMalformedInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	dim := len(header) - 1

	m, err := NewInterestMatrix(n, dim)
	if err != nil {
		return nil, err
	}

	vec := make([]int, dim)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		line, _ := reader.FieldPos(0)

		if len(record) != dim+1 {
			return nil, fmt.Errorf("%w: line %d has %d values, header declares %d",
				ErrInterestDimension, line, len(record)-1, dim)
		}
		uid, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: bad uid %q", ErrMalformedInput, line, record[0])
		}
		if uid < 1 || uid > n {
			return nil, fmt.Errorf("%w: line %d: uid %d with %d nodes", ErrNodeOutOfRange, line, uid, n)
		}
		for d := 0; d < dim; d++ {
			v, err := strconv.Atoi(strings.TrimSpace(record[d+1]))
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: bad value %q", ErrMalformedInput, line, record[d+1])
			}
			vec[d] = v
		}
		if err := m.Set(uid-1, vec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	return m, nil
}

// LoadInterestsFile opens path and calls LoadInterests.
func LoadInterestsFile(path string, n int) (*InterestMatrix, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open interest file %s: %w", path, err)
	}
	defer file.Close()

	m, err := LoadInterests(file, n)
	if err != nil {
		return nil, fmt.Errorf("interest file %s: %w", path, err)
	}
	return m, nil
}
