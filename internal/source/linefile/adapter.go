// Package linefile reads identifiers from a line-oriented text file.
package linefile

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Adapter implements source.Source over a file with one identifier per line.
// Blank lines and lines starting with '#' are ignored. A line holding a JSON
// object is read through its "url" field, so harvester JSONL output works too.
type Adapter struct {
	path   string
	filter string
	ids    []string
	loaded bool
}

// NewAdapter creates an adapter for path. When filter is non-empty only
// lines containing it are kept.
func NewAdapter(path, filter string) *Adapter {
	return &Adapter{path: path, filter: filter}
}

// Name returns the source label.
func (a *Adapter) Name() string {
	return "file:" + a.path
}

// FetchBatch returns identifiers from the file using an index cursor.
func (a *Adapter) FetchBatch(ctx context.Context, cursor string, limit int) ([]string, string, error) {
	if !a.loaded {
		if err := a.load(); err != nil {
			return nil, "", err
		}
		a.loaded = true
	}

	start := 0
	if cursor != "" {
		var err error
		start, err = strconv.Atoi(cursor)
		if err != nil || start < 0 {
			return nil, "", fmt.Errorf("invalid cursor %q", cursor)
		}
	}
	if start >= len(a.ids) || limit <= 0 {
		return []string{}, "", nil
	}

	end := start + limit
	if end > len(a.ids) {
		end = len(a.ids)
	}
	next := ""
	if end < len(a.ids) {
		next = strconv.Itoa(end)
	}
	return a.ids[start:end], next, nil
}

func (a *Adapter) load() error {
	file, err := os.Open(a.path)
	if err != nil {
		return fmt.Errorf("open identifier list: %w", err)
	}
	defer file.Close()

	a.ids = nil
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		id := parseLine(scanner.Text())
		if id == "" {
			continue
		}
		if a.filter != "" && !strings.Contains(id, a.filter) {
			continue
		}
		a.ids = append(a.ids, id)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read identifier list: %w", err)
	}
	return nil
}

func parseLine(line string) string {
	line = strings.TrimSpace(strings.TrimPrefix(line, "\ufeff"))
	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	if strings.HasPrefix(line, "{") {
		var item struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			return ""
		}
		return strings.TrimSpace(item.URL)
	}
	return line
}
