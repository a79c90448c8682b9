package wind

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNoDataset is returned by operations that need a loaded dataset before
// one is available.
var ErrNoDataset = errors.New("no wind dataset loaded")

// Dataset is a loaded wind field together with where and when it came from.
type Dataset struct {
	Source    string
	FetchedAt time.Time
	Field     *Field
}

// Info summarizes a dataset for status endpoints.
type Info struct {
	Source     string    `json:"source"`
	FetchedAt  time.Time `json:"fetched_at"`
	ValidFrom  time.Time `json:"valid_from"`
	ValidUntil time.Time `json:"valid_until"`
	Snapshots  int       `json:"snapshots"`
	Levels     []float64 `json:"levels_hpa"`
}

// Info describes d.
func (d *Dataset) Info() Info {
	from, until := d.Field.TimeRange()
	return Info{
		Source:     d.Source,
		FetchedAt:  d.FetchedAt.UTC(),
		ValidFrom:  from,
		ValidUntil: until,
		Snapshots:  d.Field.Snapshots(),
		Levels:     d.Field.Levels(),
	}
}

// Store provides thread-safe access to the current wind dataset.
type Store struct {
	dataset atomic.Pointer[Dataset]
	mu      sync.Mutex // serializes fetch operations
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current dataset, or nil if none has been loaded.
func (s *Store) Get() *Dataset {
	return s.dataset.Load()
}

// Set atomically replaces the current dataset.
func (s *Store) Set(ds *Dataset) {
	s.dataset.Store(ds)
}

// AgeSeconds returns the age of the current dataset in seconds, or -1 if
// no dataset is loaded.
func (s *Store) AgeSeconds() float64 {
	ds := s.dataset.Load()
	if ds == nil {
		return -1
	}
	return time.Since(ds.FetchedAt).Seconds()
}

// Lock acquires the fetch mutex.
func (s *Store) Lock() {
	s.mu.Lock()
}

// Unlock releases the fetch mutex.
func (s *Store) Unlock() {
	s.mu.Unlock()
}
