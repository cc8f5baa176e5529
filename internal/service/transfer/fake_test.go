package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/sonix-downloader/internal/adapter/filesystem"
	"github.com/vertextoedge/sonix-downloader/internal/adapter/memory"
	"github.com/vertextoedge/sonix-downloader/internal/domain"
	"github.com/vertextoedge/sonix-downloader/internal/domain/event"
	"github.com/vertextoedge/sonix-downloader/internal/port"
)

var errBodyClosed = errors.New("body closed")

// gatedBody serves data and blocks at blockAt until gate is closed or the body is closed
type gatedBody struct {
	data    []byte
	pos     int
	blockAt int
	gate    <-chan struct{}

	closed chan struct{}
	once   sync.Once
}

func (b *gatedBody) Read(p []byte) (int, error) {
	select {
	case <-b.closed:
		return 0, errBodyClosed
	default:
	}
	if b.pos >= len(b.data) {
		return 0, io.EOF
	}

	gated := b.gate != nil && b.blockAt >= 0
	if gated && b.pos >= b.blockAt {
		select {
		case <-b.gate:
		case <-b.closed:
			return 0, errBodyClosed
		}
	}

	end := len(b.data)
	if gated && b.pos < b.blockAt && b.blockAt < end {
		end = b.blockAt
	}
	n := copy(p, b.data[b.pos:end])
	b.pos += n
	return n, nil
}

func (b *gatedBody) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

// fakeFetcher serves content as a ranged remote
type fakeFetcher struct {
	mu         sync.Mutex
	content    []byte
	total      int64
	honorRange bool
	status     int
	blockAt    int
	gate       chan struct{}
	offsets    []int64
}

func newFakeFetcher(content []byte) *fakeFetcher {
	return &fakeFetcher{
		content:    content,
		total:      int64(len(content)),
		honorRange: true,
		blockAt:    -1,
	}
}

// block makes the next stream stop at byte position at until release is called
func (f *fakeFetcher) block(at int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockAt = at
	f.gate = make(chan struct{})
}

func (f *fakeFetcher) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
	}
	f.gate = nil
	f.blockAt = -1
}

func (f *fakeFetcher) calls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.offsets...)
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, offset int64) (*port.RemoteStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offsets = append(f.offsets, offset)

	if f.status != 0 {
		return nil, &domain.RemoteStatusError{StatusCode: f.status, Status: fmt.Sprintf("%d", f.status)}
	}

	start := offset
	if !f.honorRange {
		start = 0
	}
	// A partial file larger than the remote one is fetched again from 0
	if start > int64(len(f.content)) {
		start = 0
	}

	body := &gatedBody{
		data:    f.content,
		pos:     int(start),
		blockAt: f.blockAt,
		gate:    f.gate,
		closed:  make(chan struct{}),
	}
	return &port.RemoteStream{Body: body, Offset: start, TotalBytes: f.total}, nil
}

// gatedRemoveFS holds RemoveArtifacts until gate is closed
type gatedRemoveFS struct {
	port.FileSystem

	entered chan struct{}
	gate    chan struct{}
}

func newGatedRemoveFS(fs port.FileSystem) *gatedRemoveFS {
	return &gatedRemoveFS{
		FileSystem: fs,
		entered:    make(chan struct{}),
		gate:       make(chan struct{}),
	}
}

func (g *gatedRemoveFS) RemoveArtifacts(name string) error {
	close(g.entered)
	<-g.gate
	return g.FileSystem.RemoveArtifacts(name)
}

// recordingStore records every successful progress update
type recordingStore struct {
	*memory.TransferStore

	mu       sync.Mutex
	progress []int64
}

func (s *recordingStore) Update(id string, fn func(*domain.DownloadState) error) (domain.DownloadState, error) {
	state, err := s.TransferStore.Update(id, fn)
	if err == nil && state.Status == domain.StatusDownloading {
		s.mu.Lock()
		s.progress = append(s.progress, state.BytesTransferred)
		s.mu.Unlock()
	}
	return state, err
}

func (s *recordingStore) recorded() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.progress...)
}

// eventRecorder collects dispatched event names
type eventRecorder struct {
	mu    sync.Mutex
	names []string
}

func (r *eventRecorder) Handle(e event.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, e.EventName())
	return nil
}

func (r *eventRecorder) HandledEvents() []string {
	return []string{"*"}
}

func (r *eventRecorder) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

type testEnv struct {
	manager *Manager
	fetcher *fakeFetcher
	store   *recordingStore
	fs      *filesystem.Manager
	events  *eventRecorder
}

func newTestEnv(t *testing.T, content []byte, cfg *Config) *testEnv {
	t.Helper()

	fs, err := filesystem.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.BufferSize = 100

	store := &recordingStore{TransferStore: memory.NewTransferStore()}
	fetcher := newFakeFetcher(content)
	events := &eventRecorder{}
	dispatcher := event.NewInMemoryDispatcher(zap.NewNop())
	dispatcher.Subscribe(events)

	m := NewManager(cfg, store, fs, fetcher, dispatcher, zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.Shutdown(ctx)
	})

	return &testEnv{manager: m, fetcher: fetcher, store: store, fs: fs, events: events}
}

func (e *testEnv) start(t *testing.T, name string) *domain.StartResult {
	t.Helper()
	res, err := e.manager.Start(context.Background(), StartRequest{URL: "http://example.com/" + name, FileName: name})
	if err != nil {
		t.Fatalf("Start(%s) error = %v", name, err)
	}
	return res
}

func (e *testEnv) waitStatus(t *testing.T, name string, status domain.Status) domain.DownloadState {
	t.Helper()
	var state domain.DownloadState
	waitFor(t, fmt.Sprintf("%s to be %s", name, status), func() bool {
		var err error
		state, err = e.manager.Progress(name)
		return err == nil && state.Status == status && !e.manager.IsActive(name)
	})
	return state
}

func (e *testEnv) waitBytes(t *testing.T, name string, n int64) domain.DownloadState {
	t.Helper()
	var state domain.DownloadState
	waitFor(t, fmt.Sprintf("%s to reach %d bytes", name, n), func() bool {
		var err error
		state, err = e.manager.Progress(name)
		return err == nil && state.BytesTransferred == n
	})
	return state
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat(%s) error = %v", path, err)
	}
	return info.Size()
}

func assertContent(t *testing.T, path string, want []byte) {
	t.Helper()
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", path, err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("content of %s differs: got %d bytes, want %d bytes", path, len(got), len(want))
	}
}

func testContent(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return b
}
