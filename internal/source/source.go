// Package source provides the offline record sources: a previously saved raw
// record on disk and the bundled mock dataset.
package source

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

// Source names used in artifact names.
const (
	NameFile = "file"
	NameMock = "mock"
)

//go:embed mockdata/family_office.json
var mockDataset []byte

var json = jsoniter.Config{
	EscapeHTML:  true,
	SortMapKeys: true,
	UseNumber:   true,
}.Froze()

// DecodeRaw parses a raw provider record. Numbers are kept as json.Number.
func DecodeRaw(data []byte) (map[string]interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode raw record: %w", err)
	}
	raw, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("decode raw record: top level is %T, want object", v)
	}
	return raw, nil
}

// EncodeRaw renders a raw record as indented JSON with sorted keys.
func EncodeRaw(raw map[string]interface{}) ([]byte, error) {
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode raw record: %w", err)
	}
	return append(data, '\n'), nil
}

// FileAdapter reads a raw record saved by the fetch command.
type FileAdapter struct {
	path string
}

func NewFileAdapter(path string) *FileAdapter {
	return &FileAdapter{path: path}
}

func (a *FileAdapter) Name() string { return NameFile }

func (a *FileAdapter) Fetch(ctx context.Context) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(a.path)
	if err != nil {
		return nil, fmt.Errorf("read raw record %q: %w", a.path, err)
	}
	return DecodeRaw(data)
}

// MockAdapter serves the bundled family-office dataset, or the file at
// path when one is given.
type MockAdapter struct {
	path string
}

func NewMockAdapter(path string) *MockAdapter {
	return &MockAdapter{path: path}
}

func (a *MockAdapter) Name() string { return NameMock }

func (a *MockAdapter) Fetch(ctx context.Context) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.path == "" {
		return DecodeRaw(mockDataset)
	}
	data, err := os.ReadFile(a.path)
	if err != nil {
		return nil, fmt.Errorf("read mock dataset %q: %w", a.path, err)
	}
	return DecodeRaw(data)
}
