package summarizer

import (
	"fmt"
	"io"

	"github.com/user/vidloop/pkg/ports"
)

// Writer writes formatted summaries to files or streams.
type Writer struct {
	formatter Formatter
	fs        ports.FileSystem
}

// NewWriter creates a new Writer with the given Formatter.
func NewWriter(formatter Formatter, fs ports.FileSystem) *Writer {
	return &Writer{
		formatter: formatter,
		fs:        fs,
	}
}

// Write formats the summary and writes it to the specified path.
// The FileSystem creates missing parent directories.
func (w *Writer) Write(path string, summary *Summary) error {
	content, err := w.formatter.Format(summary)
	if err != nil {
		return err
	}
	if err := w.fs.WriteFile(path, []byte(content)); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// WriteTo formats the summary and writes it to out.
func (w *Writer) WriteTo(out io.Writer, summary *Summary) error {
	content, err := w.formatter.Format(summary)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(out, content); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
