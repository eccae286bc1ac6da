package knapsack

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

type document struct {
	Name     string `json:"name" yaml:"name"`
	Capacity *int64 `json:"capacity" yaml:"capacity"`
	Items    []Item `json:"items" yaml:"items"`
}

// FormatForPath picks the instance format from the file extension, ignoring
// a trailing .zst.
func FormatForPath(path string) Format {
	base := strings.TrimSuffix(strings.ToLower(path), ".zst")
	switch filepath.Ext(base) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatText
	}
}

// Load reads an instance file. Files ending in .zst are decompressed first.
func Load(path string) (*Knapsack, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer f.Close()

	var r io.Reader = f
	if strings.EqualFold(filepath.Ext(path), ".zst") {
		d, err := zstd.NewReader(f)
		if err != nil {
			return nil, &LoadError{Path: path, Err: fmt.Errorf("create zstd reader: %w", err)}
		}
		defer d.Close()
		r = d
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	name := strings.TrimSuffix(filepath.Base(path), ".zst")
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return Parse(name, bytes.NewReader(data), FormatForPath(path))
}

func Parse(name string, r io.Reader, format Format) (*Knapsack, error) {
	switch format {
	case FormatJSON, FormatYAML:
		return parseDocument(name, r, format)
	case FormatText, "":
		return parseText(name, r)
	default:
		return nil, &ParseError{Source: name, Msg: fmt.Sprintf("unsupported format %q", format)}
	}
}

func parseDocument(name string, r io.Reader, format Format) (*Knapsack, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &LoadError{Path: name, Err: err}
	}

	var doc document
	if format == FormatJSON {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&doc)
	} else {
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, &ParseError{Source: name, Msg: err.Error()}
	}
	if doc.Capacity == nil {
		return nil, &ParseError{Source: name, Msg: "capacity is required"}
	}
	if doc.Name != "" {
		name = doc.Name
	}
	return build(name, doc.Items, *doc.Capacity)
}

// parseText reads the line format: item count, then one "id value weight"
// line per item, then the capacity. Ids are labels: they must be unique but
// need not be ordered, and bit positions follow line order.
func parseText(name string, r io.Reader) (*Knapsack, error) {
	type line struct {
		no     int
		fields []string
	}

	var lines []line
	scanner := bufio.NewScanner(r)
	no := 0
	for scanner.Scan() {
		no++
		text := strings.TrimSpace(scanner.Text())
		if idx := strings.IndexByte(text, '#'); idx >= 0 {
			text = strings.TrimSpace(text[:idx])
		}
		if text == "" {
			continue
		}
		lines = append(lines, line{no: no, fields: strings.Fields(text)})
	}
	if err := scanner.Err(); err != nil {
		return nil, &LoadError{Path: name, Err: err}
	}
	if len(lines) == 0 {
		return nil, &ParseError{Source: name, Msg: "empty instance"}
	}

	header := lines[0]
	if len(header.fields) != 1 {
		return nil, &ParseError{Source: name, Line: header.no, Msg: fmt.Sprintf("expected item count, got %d fields", len(header.fields))}
	}
	count, err := strconv.Atoi(header.fields[0])
	if err != nil || count <= 0 {
		return nil, &ParseError{Source: name, Line: header.no, Msg: fmt.Sprintf("invalid item count %q", header.fields[0])}
	}
	if len(lines) != count+2 {
		return nil, &ParseError{Source: name, Msg: fmt.Sprintf("expected %d item lines and a capacity line, got %d lines after the header", count, len(lines)-1)}
	}

	items := make([]Item, 0, count)
	seen := make(map[string]int, count)
	for _, ln := range lines[1 : count+1] {
		if len(ln.fields) != 3 {
			return nil, &ParseError{Source: name, Line: ln.no, Msg: fmt.Sprintf("expected 3 fields (id value weight), got %d", len(ln.fields))}
		}
		id := ln.fields[0]
		if prev, ok := seen[id]; ok {
			return nil, &ParseError{Source: name, Line: ln.no, Msg: fmt.Sprintf("duplicate item id %q (first on line %d)", id, prev)}
		}
		seen[id] = ln.no
		value, err := parseNonNegative(ln.fields[1])
		if err != nil {
			return nil, &ParseError{Source: name, Line: ln.no, Msg: fmt.Sprintf("value: %v", err)}
		}
		weight, err := parseNonNegative(ln.fields[2])
		if err != nil {
			return nil, &ParseError{Source: name, Line: ln.no, Msg: fmt.Sprintf("weight: %v", err)}
		}
		items = append(items, Item{Weight: weight, Value: value})
	}

	last := lines[count+1]
	if len(last.fields) != 1 {
		return nil, &ParseError{Source: name, Line: last.no, Msg: fmt.Sprintf("expected capacity, got %d fields", len(last.fields))}
	}
	capacity, err := parseNonNegative(last.fields[0])
	if err != nil {
		return nil, &ParseError{Source: name, Line: last.no, Msg: fmt.Sprintf("capacity: %v", err)}
	}
	return build(name, items, capacity)
}

func build(name string, items []Item, capacity int64) (*Knapsack, error) {
	ks, err := New(name, items, capacity)
	if err != nil {
		return nil, &ParseError{Source: name, Msg: err.Error(), Err: err}
	}
	return ks, nil
}

func parseNonNegative(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	if v < 0 {
		return 0, fmt.Errorf("must be >= 0, got %d", v)
	}
	return v, nil
}
