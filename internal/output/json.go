package output

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/PentesterFlow/slowscope/internal/descriptor"
)

// JSONWriter writes output in JSON format.
type JSONWriter struct {
	mu     sync.Mutex
	writer io.Writer
	pretty bool
	stream bool
	closed bool
}

// NewJSONWriter creates a new JSON writer. In stream mode descriptors are
// written one per line as they are produced and WriteDescriptors is a no-op.
func NewJSONWriter(w io.Writer, pretty, stream bool) *JSONWriter {
	return &JSONWriter{
		writer: w,
		pretty: pretty,
		stream: stream,
	}
}

// WriteDescriptors writes all descriptors as a JSON array.
func (j *JSONWriter) WriteDescriptors(descriptors []descriptor.Descriptor) error {
	if j.stream {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	if descriptors == nil {
		descriptors = []descriptor.Descriptor{}
	}
	return j.write(descriptors, j.pretty)
}

// WriteDescriptor writes a single descriptor in streaming mode.
func (j *JSONWriter) WriteDescriptor(d descriptor.Descriptor) error {
	if !j.stream {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	// one record per line keeps the stream parseable
	return j.write(d, false)
}

// WriteReport writes the complete scan report.
func (j *JSONWriter) WriteReport(report *Report) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	return j.write(report, j.pretty)
}

func (j *JSONWriter) write(v interface{}, pretty bool) error {
	var data []byte
	var err error

	if pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}

	if _, err = j.writer.Write(data); err != nil {
		return err
	}
	_, err = j.writer.Write([]byte("\n"))
	return err
}

// Flush flushes the writer.
func (j *JSONWriter) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if flusher, ok := j.writer.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

// Close closes the writer.
func (j *JSONWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true

	if _, ok := j.writer.(nopCloser); ok {
		return nil
	}
	if closer, ok := j.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
