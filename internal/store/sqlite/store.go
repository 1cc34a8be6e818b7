package sqlite

import (
	"errors"
	"fmt"
)

// Store pairs the writer and a reader on the same database file and satisfies
// model.PriceReader, model.PriceWriter and model.SignalLog.
type Store struct {
	*Writer
	*Reader
}

// Open creates the schema and opens both connections.
func Open(path string) (*Store, error) {
	w, err := New(WriterConfig{DBPath: path})
	if err != nil {
		return nil, err
	}
	r, err := NewReader(path)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("sqlite store: %w", err)
	}
	return &Store{Writer: w, Reader: r}, nil
}

// Close closes both connections.
func (s *Store) Close() error {
	return errors.Join(s.Reader.Close(), s.Writer.Close())
}
