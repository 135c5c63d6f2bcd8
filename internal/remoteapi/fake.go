package remoteapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrNotFound is returned by Fake operations that reference a missing id.
var ErrNotFound = errors.New("remoteapi: node not found")

// Call records one invocation against a Fake, for assertions in engine
// tests that need to verify the poller/queue drove the expected sequence
// of remote calls.
type Call struct {
	Method string
	Path   string
	ID     string
}

// Fake is an in-memory Client implementation for tests, grounded on the
// teacher's recording-fake pattern used throughout internal/sync's
// *_test.go files (a mock satisfying the consumed interface, with a Calls
// log the test asserts against).
type Fake struct {
	mu      sync.Mutex
	entries map[string]Entry // keyed by ID
	content map[string][]byte
	nextID  int
	Calls   []Call
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{entries: make(map[string]Entry), content: make(map[string][]byte)}
}

// Seed inserts an Entry directly, bypassing Upload/CreateFolder, useful for
// establishing a pre-existing remote tree in a test's Arrange phase.
func (f *Fake) Seed(e Entry, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries[e.ID] = e
	if content != nil {
		f.content[e.ID] = content
	}
}

func (f *Fake) record(method, path, id string) {
	f.Calls = append(f.Calls, Call{Method: method, Path: path, ID: id})
}

func (f *Fake) allocID() string {
	f.nextID++
	return fmt.Sprintf("fake-%d", f.nextID)
}

func (f *Fake) ListTree(_ context.Context, project string) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("ListTree", project, "")

	out := make([]Entry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}

	return out, nil
}

func (f *Fake) FetchFile(_ context.Context, id string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("FetchFile", "", id)

	data, ok := f.content[id]
	if !ok {
		return nil, ErrNotFound
	}

	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (f *Fake) Upload(_ context.Context, project, path string, content io.Reader) (Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("Upload", path, "")

	data, err := io.ReadAll(content)
	if err != nil {
		return Entry{}, fmt.Errorf("remoteapi fake: reading upload content: %w", err)
	}

	var id string

	for existingID, e := range f.entries {
		if e.Path == path {
			id = existingID
			break
		}
	}

	if id == "" {
		id = f.allocID()
	}

	e := Entry{ID: id, Path: path, Kind: EntryFile, Hash: hashOf(data)}
	f.entries[id] = e
	f.content[id] = data

	return e, nil
}

func (f *Fake) CreateFolder(_ context.Context, project, path string) (Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("CreateFolder", path, "")

	id := f.allocID()
	e := Entry{ID: id, Path: path, Kind: EntryFolder}
	f.entries[id] = e

	return e, nil
}

func (f *Fake) Move(_ context.Context, project, id, newPath string) (Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("Move", newPath, id)

	e, ok := f.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}

	oldPath := e.Path
	e.Path = newPath
	f.entries[id] = e

	if e.Kind == EntryFolder {
		for otherID, other := range f.entries {
			if otherID == id || !strings.HasPrefix(other.Path, oldPath+"/") {
				continue
			}

			other.Path = newPath + strings.TrimPrefix(other.Path, oldPath)
			f.entries[otherID] = other
		}
	}

	return e, nil
}

func (f *Fake) Delete(_ context.Context, project, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("Delete", "", id)

	e, ok := f.entries[id]
	if !ok {
		return ErrNotFound
	}

	delete(f.entries, id)
	delete(f.content, id)

	if e.Kind != EntryFolder {
		return nil
	}

	for otherID, other := range f.entries {
		if strings.HasPrefix(other.Path, e.Path+"/") {
			delete(f.entries, otherID)
			delete(f.content, otherID)
		}
	}

	return nil
}

func (f *Fake) ContentHash(_ context.Context, project, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("ContentHash", "", id)

	e, ok := f.entries[id]
	if !ok {
		return "", ErrNotFound
	}

	return e.Hash, nil
}

func hashOf(data []byte) string {
	var sum uint32 = 2166136261

	for _, b := range data {
		sum ^= uint32(b)
		sum *= 16777619
	}

	return fmt.Sprintf("%08x", sum)
}

var _ Client = (*Fake)(nil)
