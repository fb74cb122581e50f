package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"castspc/internal/config"
	"castspc/internal/fileutil"
	"castspc/internal/measurement"
)

const (
	filePrefix  = "buffer_"
	stampLayout = "20060102_150405"
)

// Document is the on-disk snapshot layout.
type Document struct {
	GeneratedAt time.Time            `json:"generated_at" yaml:"generated_at"`
	Count       int                  `json:"count" yaml:"count"`
	Defects     int                  `json:"defects" yaml:"defects"`
	Records     []measurement.Record `json:"records" yaml:"records"`
}

// FileName returns the snapshot file name for format at now.
func FileName(format string, now time.Time) string {
	return filePrefix + now.Format(stampLayout) + "." + extension(format)
}

// Pattern matches snapshot files of every format for retention pruning.
func Pattern() string {
	return filePrefix + "*"
}

// Write serializes records into dir and returns the file path.
func Write(dir, format string, records []measurement.Record, now time.Time) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return "", fmt.Errorf("snapshot directory is empty")
	}
	doc := Document{
		GeneratedAt: now.UTC(),
		Count:       len(records),
		Records:     records,
	}
	if doc.Records == nil {
		doc.Records = []measurement.Record{}
	}
	for _, rec := range records {
		if rec.IsDefect() {
			doc.Defects++
		}
	}

	data, err := Encode(format, doc)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot directory: %w", err)
	}
	path := filepath.Join(dir, FileName(format, now))
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// Encode renders doc in the requested format.
func Encode(format string, doc Document) ([]byte, error) {
	switch normalizeFormat(format) {
	case config.SnapshotYAML:
		data, err := yaml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode yaml snapshot: %w", err)
		}
		return data, nil
	case config.SnapshotJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json snapshot: %w", err)
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("unsupported snapshot format %q", format)
	}
}

// Read loads a snapshot file, choosing the decoder from its extension.
func Read(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read snapshot: %w", err)
	}
	var doc Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return Document{}, fmt.Errorf("decode snapshot %s: %w", filepath.Base(path), err)
	}
	return doc, nil
}

func normalizeFormat(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", config.SnapshotJSON:
		return config.SnapshotJSON
	case config.SnapshotYAML, "yml":
		return config.SnapshotYAML
	default:
		return format
	}
}

func extension(format string) string {
	if normalizeFormat(format) == config.SnapshotYAML {
		return "yaml"
	}
	return "json"
}
