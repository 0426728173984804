// Package summarizer builds stream reports for probed and played media files.
package summarizer

// Formatter defines the interface for formatting a Summary.
type Formatter interface {
	// Format converts a Summary to a formatted string.
	Format(summary *Summary) (string, error)
}

// FormatFunc is a function adapter for the Formatter interface.
type FormatFunc func(summary *Summary) (string, error)

// Format implements the Formatter interface.
func (f FormatFunc) Format(summary *Summary) (string, error) {
	return f(summary)
}
