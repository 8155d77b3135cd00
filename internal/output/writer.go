// Package output writes scan results.
package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/PentesterFlow/slowscope/internal/descriptor"
)

// Writer defines the interface for output writers.
type Writer interface {
	// WriteDescriptors writes the load-test descriptors as one JSON array
	WriteDescriptors(descriptors []descriptor.Descriptor) error

	// WriteDescriptor writes a single descriptor (for streaming)
	WriteDescriptor(d descriptor.Descriptor) error

	// WriteReport writes the full scan report
	WriteReport(report *Report) error

	// Flush flushes any buffered output
	Flush() error

	// Close closes the writer
	Close() error
}

// Format selects what a writer emits.
const (
	// FormatDescriptors emits the descriptor array only.
	FormatDescriptors = "descriptors"
	// FormatReport emits the full report.
	FormatReport = "report"
)

// Config holds output configuration.
type Config struct {
	Format   string `json:"format" yaml:"format"`
	Pretty   bool   `json:"pretty" yaml:"pretty"`
	Stream   bool   `json:"stream" yaml:"stream"`
	FilePath string `json:"file_path" yaml:"file_path"`
}

// NewWriter creates a new output writer. Output is always JSON; Format
// decides whether the caller writes descriptors or a report.
func NewWriter(w io.Writer, config Config) Writer {
	return NewJSONWriter(w, config.Pretty, config.Stream)
}

// Open returns a writer for config.FilePath, or for stdout when it is empty.
// Closing the writer closes the file.
func Open(config Config) (Writer, error) {
	if config.FilePath == "" {
		return NewWriter(nopCloser{os.Stdout}, config), nil
	}

	if dir := filepath.Dir(config.FilePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return NewWriter(f, config), nil
}

// nopCloser keeps Close from closing stdout.
type nopCloser struct {
	io.Writer
}
