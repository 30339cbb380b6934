// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/dird/internal/models"
	"github.com/desertthunder/dird/internal/shared"
	"github.com/desertthunder/dird/internal/sources"
)

// MockSource is a test double for [sources.Source] serving a fixed set of contacts.
//
// Search matches any field containing the term, FirstMatch any field equal to it, and List
// the contact ids. Delay is slept without watching the context, like a backend that cannot be
// interrupted.
type MockSource struct {
	SourceName string
	Backend    string
	Contacts   []models.Contact
	Err        error
	Delay      time.Duration

	mu    sync.Mutex
	calls map[string]int
}

// NewMockSource creates a source called name holding contacts, stamping their source and backend.
func NewMockSource(name string, contacts ...models.Contact) *MockSource {
	m := &MockSource{SourceName: name, Backend: "mock"}
	for _, c := range contacts {
		c.Source = name
		if c.Backend == "" {
			c.Backend = m.Backend
		}
		m.Contacts = append(m.Contacts, c)
	}
	return m
}

func (m *MockSource) Name() string { return m.SourceName }

func (m *MockSource) record(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[op]++
}

// Calls returns how many times op ("search", "first_match", "list") was called.
func (m *MockSource) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *MockSource) wait() {
	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}
}

func (m *MockSource) Search(ctx context.Context, term string, args sources.Args) ([]models.Contact, error) {
	m.record("search")
	m.wait()
	if m.Err != nil {
		return nil, m.Err
	}
	var results []models.Contact
	for _, c := range m.Contacts {
		for _, v := range c.Fields {
			if shared.ContainsFold(v, term) {
				results = append(results, c)
				break
			}
		}
	}
	return results, nil
}

func (m *MockSource) FirstMatch(ctx context.Context, term string, args sources.Args) (*models.Contact, error) {
	m.record("first_match")
	m.wait()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, c := range m.Contacts {
		for _, v := range c.Fields {
			if v == term {
				c := c
				return &c, nil
			}
		}
	}
	return nil, nil
}

func (m *MockSource) List(ctx context.Context, ids []string, args sources.Args) ([]models.Contact, error) {
	m.record("list")
	m.wait()
	if m.Err != nil {
		return nil, m.Err
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var results []models.Contact
	for _, c := range m.Contacts {
		if c.ID != "" && wanted[c.ID] {
			results = append(results, c)
		}
	}
	return results, nil
}

// MockLister adds [sources.Lister] to a [MockSource].
type MockLister struct {
	*MockSource
}

func (m MockLister) All(ctx context.Context, args sources.Args) ([]models.Contact, error) {
	m.record("all")
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Contacts, nil
}

// StaticRegistry always serves the same generation.
type StaticRegistry struct {
	Generation *sources.Generation
}

func (r StaticRegistry) Current() *sources.Generation { return r.Generation }

// NewStaticRegistry builds a generation from srcs and snap. A source without a config in snap
// gets one using the mock backend.
func NewStaticRegistry(snap sources.Snapshot, srcs ...sources.Source) StaticRegistry {
	loaded := make(map[string]sources.Source, len(srcs))
	configured := make(map[string]bool, len(snap.Sources))
	for _, c := range snap.Sources {
		configured[c.Name] = true
	}
	for _, s := range srcs {
		loaded[s.Name()] = s
		if !configured[s.Name()] {
			backend := "mock"
			if m, ok := s.(*MockSource); ok && m.Backend != "" {
				backend = m.Backend
			}
			snap.Sources = append(snap.Sources, models.SourceConfig{Name: s.Name(), Backend: backend})
		}
	}
	return StaticRegistry{Generation: sources.NewGeneration(1, loaded, snap)}
}

// MockFavorites is an in-memory favorites store.
type MockFavorites struct {
	Favorites []models.Favorite
	Err       error
}

func (m *MockFavorites) List(ctx context.Context, owner string) ([]models.Favorite, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	var out []models.Favorite
	for _, f := range m.Favorites {
		if f.Owner == owner {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *MockFavorites) Keys(ctx context.Context, owner string) (map[models.FavoriteKey]bool, error) {
	favorites, err := m.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	keys := make(map[models.FavoriteKey]bool, len(favorites))
	for _, f := range favorites {
		keys[f.Key()] = true
	}
	return keys, nil
}

// PublishedEvent is an event recorded by [MockPublisher].
type PublishedEvent struct {
	Name    string
	Payload any
}

// MockPublisher records published events and fails with Err when set.
type MockPublisher struct {
	Err error

	mu     sync.Mutex
	events []PublishedEvent
}

func (m *MockPublisher) Publish(ctx context.Context, name string, payload any) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, PublishedEvent{Name: name, Payload: payload})
	return nil
}

// Events returns the events published so far.
func (m *MockPublisher) Events() []PublishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedEvent(nil), m.events...)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

func MustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
