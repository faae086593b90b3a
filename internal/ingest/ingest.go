// Package ingest reads event feeds from JSON and JSON Lines files.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/chikai/internal/models"
)

// maxLineBytes bounds a single JSON Lines record.
const maxLineBytes = 4 << 20

// ReadFile parses a feed file by extension: ".json" holds an array of events
// or a single event object, ".jsonl" holds one event per line.
func ReadFile(path string) ([]*models.EventInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ReadJSON(f)
	case ".jsonl", ".ndjson":
		return ReadJSONLines(f)
	default:
		return nil, fmt.Errorf("unsupported feed format: %s", path)
	}
}

// ReadJSON decodes an array of events or a single event object.
func ReadJSON(r io.Reader) ([]*models.EventInput, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '[' {
		var inputs []*models.EventInput
		if err := json.Unmarshal(data, &inputs); err != nil {
			return nil, fmt.Errorf("failed to decode event array: %w", err)
		}
		return inputs, nil
	}
	var in models.EventInput
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return []*models.EventInput{&in}, nil
}

// ReadJSONLines decodes one event per non-blank line.
func ReadJSONLines(r io.Reader) ([]*models.EventInput, error) {
	var inputs []*models.EventInput
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var in models.EventInput
		if err := json.Unmarshal(text, &in); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		inputs = append(inputs, &in)
	}
	return inputs, sc.Err()
}

// Registrar registers one event.
type Registrar interface {
	Register(ctx context.Context, in *models.EventInput) (*models.Event, error)
}

// Result counts the outcome of an import.
type Result struct {
	File     string   `json:"file"`
	Imported int      `json:"imported"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// Importer registers every event of a feed file.
type Importer struct {
	registrar Registrar
	logger    *zap.Logger
}

// NewImporter creates an importer. A nil logger discards output.
func NewImporter(r Registrar, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{registrar: r, logger: logger}
}

// ImportFile reads path and registers each event. A failing event is counted
// and reported without stopping the import; a context error stops it.
func (im *Importer) ImportFile(ctx context.Context, path string) (*Result, error) {
	inputs, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	res := &Result{File: path}
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, err := im.registrar.Register(ctx, in); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("record %d: %v", i+1, err))
			im.logger.Warn("event import failed",
				zap.String("file", path),
				zap.Int("record", i+1),
				zap.Error(err))
			continue
		}
		res.Imported++
	}
	im.logger.Info("feed imported",
		zap.String("file", path),
		zap.Int("imported", res.Imported),
		zap.Int("failed", res.Failed))
	return res, nil
}
