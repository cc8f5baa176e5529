package transfer

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/vertextoedge/sonix-downloader/internal/domain"
	"github.com/vertextoedge/sonix-downloader/internal/domain/event"
)

func TestManager_FreshDownload(t *testing.T) {
	content := testContent(1000)
	env := newTestEnv(t, content, nil)
	env.fetcher.block(500)

	res := env.start(t, "a.mp4")
	if res.AlreadyComplete || res.Resumed || res.TotalBytes != 1000 {
		t.Errorf("Start() = %+v", res)
	}

	state := env.waitBytes(t, "a.mp4", 500)
	if state.Status != domain.StatusDownloading {
		t.Errorf("Status = %v, want downloading", state.Status)
	}
	if state.Percent != 50 {
		t.Errorf("Percent = %v, want 50", state.Percent)
	}
	if env.fs.FileExists(env.fs.FinalPath("a.mp4")) {
		t.Error("final file exists before completion")
	}

	env.fetcher.release()

	state = env.waitStatus(t, "a.mp4", domain.StatusCompleted)
	if state.BytesTransferred != 1000 || state.Percent != 100 {
		t.Errorf("completed state = %+v", state)
	}
	assertContent(t, env.fs.FinalPath("a.mp4"), content)
	if env.fs.FileExists(env.fs.PartialPath("a.mp4")) {
		t.Error("partial file still exists after completion")
	}

	want := []string{event.NameTransferStarted, event.NameTransferCompleted}
	if got := env.events.recorded(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestManager_Resume(t *testing.T) {
	content := testContent(1000)
	env := newTestEnv(t, content, nil)

	if err := os.WriteFile(env.fs.PartialPath("b.mp4"), content[:300], 0644); err != nil {
		t.Fatal(err)
	}
	env.fetcher.block(300)

	res := env.start(t, "b.mp4")
	if !res.Resumed || res.ResumedFrom != 300 {
		t.Errorf("Start() = %+v, want resumed from 300", res)
	}
	if calls := env.fetcher.calls(); len(calls) != 1 || calls[0] != 300 {
		t.Errorf("range requests = %v, want [300]", calls)
	}

	state, err := env.manager.Progress("b.mp4")
	if err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	if state.BytesTransferred != 300 {
		t.Errorf("BytesTransferred = %d, want 300", state.BytesTransferred)
	}

	env.fetcher.release()

	state = env.waitStatus(t, "b.mp4", domain.StatusCompleted)
	if state.BytesTransferred != 1000 || !state.Resumed || state.ResumedFrom != 300 {
		t.Errorf("completed state = %+v", state)
	}
	assertContent(t, env.fs.FinalPath("b.mp4"), content)
}

func TestManager_PauseAndResume(t *testing.T) {
	content := testContent(1000)
	env := newTestEnv(t, content, nil)
	env.fetcher.block(400)

	env.start(t, "c.mp4")
	env.waitBytes(t, "c.mp4", 400)

	if err := env.manager.Pause("c.mp4"); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	state := env.waitStatus(t, "c.mp4", domain.StatusPaused)
	if state.BytesTransferred != 400 {
		t.Errorf("BytesTransferred = %d, want 400", state.BytesTransferred)
	}

	// Releasing the remote must not produce further writes
	env.fetcher.release()
	time.Sleep(20 * time.Millisecond)
	if size := fileSize(t, env.fs.PartialPath("c.mp4")); size != 400 {
		t.Errorf("partial size after pause = %d, want 400", size)
	}

	// Pausing again is a no-op
	if err := env.manager.Pause("c.mp4"); err != nil {
		t.Errorf("second Pause() error = %v", err)
	}

	res := env.start(t, "c.mp4")
	if res.ResumedFrom != 400 {
		t.Errorf("ResumedFrom = %d, want 400", res.ResumedFrom)
	}
	env.waitStatus(t, "c.mp4", domain.StatusCompleted)
	assertContent(t, env.fs.FinalPath("c.mp4"), content)

	if calls := env.fetcher.calls(); len(calls) != 2 || calls[1] != 400 {
		t.Errorf("range requests = %v, want [0 400]", calls)
	}
}

func TestManager_StartRightAfterPause(t *testing.T) {
	content := testContent(1000)
	env := newTestEnv(t, content, nil)
	env.fetcher.block(500)

	env.start(t, "c.mp4")
	env.waitBytes(t, "c.mp4", 500)

	if err := env.manager.Pause("c.mp4"); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	// No wait for the session to exit: Start must resume, not report it active
	res, err := env.manager.Start(context.Background(), StartRequest{URL: "http://example.com/c.mp4", FileName: "c.mp4"})
	if err != nil {
		t.Fatalf("Start() after Pause() error = %v", err)
	}
	if !res.Resumed || res.ResumedFrom != 500 {
		t.Errorf("Start() = %+v, want resume from 500", res)
	}

	env.fetcher.release()
	env.waitStatus(t, "c.mp4", domain.StatusCompleted)
	assertContent(t, env.fs.FinalPath("c.mp4"), content)
}

func TestManager_StartDuringCancel(t *testing.T) {
	content := testContent(1000)
	env := newTestEnv(t, content, nil)
	env.fetcher.block(500)

	env.start(t, "c.mp4")
	env.waitBytes(t, "c.mp4", 500)

	slow := newGatedRemoveFS(env.fs)
	env.manager.fs = slow

	canceled := make(chan error, 1)
	go func() { canceled <- env.manager.Cancel("c.mp4") }()
	<-slow.entered

	_, err := env.manager.Start(context.Background(), StartRequest{URL: "http://example.com/c.mp4", FileName: "c.mp4"})
	if !errors.Is(err, domain.ErrAlreadyActive) {
		t.Errorf("Start() during Cancel() error = %v, want ErrAlreadyActive", err)
	}

	close(slow.gate)
	if err := <-canceled; err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if _, err := env.manager.Progress("c.mp4"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Progress() after Cancel() error = %v, want ErrNotFound", err)
	}

	// Once Cancel returns the name is free and starts over
	env.fetcher.release()
	res := env.start(t, "c.mp4")
	if res.Resumed {
		t.Errorf("Start() after Cancel() = %+v, want fresh download", res)
	}
	env.waitStatus(t, "c.mp4", domain.StatusCompleted)
	assertContent(t, env.fs.FinalPath("c.mp4"), content)
}

func TestManager_NamesAreNormalized(t *testing.T) {
	env := newTestEnv(t, testContent(1000), nil)
	env.fetcher.block(300)

	res, err := env.manager.Start(context.Background(), StartRequest{URL: "http://example.com/a.mp4", FileName: " a.mp4 "})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if res.ID != "a.mp4" {
		t.Errorf("ID = %q, want a.mp4", res.ID)
	}
	env.waitBytes(t, "a.mp4", 300)

	if _, err := env.manager.Progress(" a.mp4"); err != nil {
		t.Errorf("Progress() error = %v", err)
	}
	if err := env.manager.Pause("a.mp4 "); err != nil {
		t.Errorf("Pause() error = %v", err)
	}
	env.waitStatus(t, "a.mp4", domain.StatusPaused)
	if err := env.manager.Cancel(" a.mp4 "); err != nil {
		t.Errorf("Cancel() error = %v", err)
	}
	if env.fs.FileExists(env.fs.PartialPath("a.mp4")) {
		t.Error("partial file should be deleted")
	}
}

func TestManager_CancelMidTransfer(t *testing.T) {
	env := newTestEnv(t, testContent(1000), nil)
	env.fetcher.block(200)

	env.start(t, "d.mp4")
	env.waitBytes(t, "d.mp4", 200)

	if err := env.manager.Cancel("d.mp4"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	if env.fs.FileExists(env.fs.PartialPath("d.mp4")) {
		t.Error("partial file still exists after cancel")
	}
	if env.fs.FileExists(env.fs.FinalPath("d.mp4")) {
		t.Error("final file exists after cancel")
	}
	if _, err := env.manager.Progress("d.mp4"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Progress() error = %v, want ErrNotFound", err)
	}
	if err := env.manager.Cancel("d.mp4"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second Cancel() error = %v, want ErrNotFound", err)
	}
	if env.manager.IsActive("d.mp4") {
		t.Error("session still active after cancel")
	}

	got := env.events.recorded()
	if len(got) == 0 || got[len(got)-1] != event.NameTransferCanceled {
		t.Errorf("events = %v, want last %s", got, event.NameTransferCanceled)
	}
}

func TestManager_CancelCompletedRemovesFinal(t *testing.T) {
	env := newTestEnv(t, testContent(300), nil)

	env.start(t, "e.mp4")
	env.waitStatus(t, "e.mp4", domain.StatusCompleted)

	if err := env.manager.Cancel("e.mp4"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if env.fs.FileExists(env.fs.FinalPath("e.mp4")) {
		t.Error("final file exists after cancel")
	}
}

func TestManager_StartAlreadyComplete(t *testing.T) {
	env := newTestEnv(t, testContent(100), nil)

	if err := os.WriteFile(env.fs.FinalPath("a.mp4"), []byte("done"), 0644); err != nil {
		t.Fatal(err)
	}

	res := env.start(t, "a.mp4")
	if !res.AlreadyComplete {
		t.Errorf("AlreadyComplete = false, want true")
	}
	if calls := env.fetcher.calls(); len(calls) != 0 {
		t.Errorf("remote called %d times, want 0", len(calls))
	}
	if _, err := env.manager.Progress("a.mp4"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Progress() error = %v, want ErrNotFound", err)
	}
}

func TestManager_StartInvalidRequest(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		fileName string
	}{
		{name: "empty url", url: "", fileName: "a.mp4"},
		{name: "empty file name", url: "http://example.com/a", fileName: ""},
		{name: "parent reference", url: "http://example.com/a", fileName: ".."},
		{name: "path separator", url: "http://example.com/a", fileName: "dir/a.mp4"},
		{name: "partial suffix", url: "http://example.com/a", fileName: "a.mp4.part"},
		{name: "unsupported scheme", url: "ftp://example.com/a", fileName: "a.mp4"},
		{name: "missing host", url: "http:///a", fileName: "a.mp4"},
	}

	env := newTestEnv(t, testContent(100), nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.manager.Start(context.Background(), StartRequest{URL: tt.url, FileName: tt.fileName})
			if !errors.Is(err, domain.ErrInvalidRequest) {
				t.Errorf("Start() error = %v, want ErrInvalidRequest", err)
			}
		})
	}

	if n := len(env.manager.List()); n != 0 {
		t.Errorf("store has %d entries after invalid starts, want 0", n)
	}
	if calls := env.fetcher.calls(); len(calls) != 0 {
		t.Errorf("remote called %d times, want 0", len(calls))
	}
}

func TestManager_StartWhileActive(t *testing.T) {
	env := newTestEnv(t, testContent(1000), nil)
	env.fetcher.block(100)

	env.start(t, "a.mp4")
	_, err := env.manager.Start(context.Background(), StartRequest{URL: "http://example.com/a.mp4", FileName: "a.mp4"})
	if !errors.Is(err, domain.ErrAlreadyActive) {
		t.Errorf("Start() error = %v, want ErrAlreadyActive", err)
	}
	env.fetcher.release()
	env.waitStatus(t, "a.mp4", domain.StatusCompleted)
}

func TestManager_RemoteRejected(t *testing.T) {
	env := newTestEnv(t, testContent(100), nil)
	env.fetcher.status = 404

	_, err := env.manager.Start(context.Background(), StartRequest{URL: "http://example.com/x", FileName: "x.mp4"})
	if !domain.IsTransferFailed(err) {
		t.Fatalf("Start() error = %v, want TransferFailedError", err)
	}
	if code, ok := domain.GetRemoteStatus(err); !ok || code != 404 {
		t.Errorf("GetRemoteStatus() = %d, %v, want 404", code, ok)
	}

	state, err := env.manager.Progress("x.mp4")
	if err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	if state.Status != domain.StatusFailed || state.LastError == "" {
		t.Errorf("state = %+v, want failed with error", state)
	}
	if env.manager.IsActive("x.mp4") {
		t.Error("session still active after rejected start")
	}

	// A failed entry can be retried
	env.fetcher.status = 0
	env.start(t, "x.mp4")
	env.waitStatus(t, "x.mp4", domain.StatusCompleted)
}

func TestManager_RangeIgnoredRestartsFromZero(t *testing.T) {
	content := testContent(1000)
	env := newTestEnv(t, content, nil)
	env.fetcher.honorRange = false

	if err := os.WriteFile(env.fs.PartialPath("a.mp4"), []byte(strings.Repeat("z", 300)), 0644); err != nil {
		t.Fatal(err)
	}

	res := env.start(t, "a.mp4")
	if res.Resumed || res.ResumedFrom != 0 {
		t.Errorf("Start() = %+v, want restart from 0", res)
	}
	env.waitStatus(t, "a.mp4", domain.StatusCompleted)
	assertContent(t, env.fs.FinalPath("a.mp4"), content)
}

func TestManager_PartialLargerThanRemoteRestarts(t *testing.T) {
	content := testContent(500)
	env := newTestEnv(t, content, nil)

	if err := os.WriteFile(env.fs.PartialPath("a.mp4"), testContent(800), 0644); err != nil {
		t.Fatal(err)
	}

	res := env.start(t, "a.mp4")
	if res.Resumed || res.ResumedFrom != 0 {
		t.Errorf("Start() = %+v, want restart from 0", res)
	}
	env.waitStatus(t, "a.mp4", domain.StatusCompleted)
	assertContent(t, env.fs.FinalPath("a.mp4"), content)
}

func TestManager_PartialAlreadyFull(t *testing.T) {
	content := testContent(500)
	env := newTestEnv(t, content, nil)

	if err := os.WriteFile(env.fs.PartialPath("a.mp4"), content, 0644); err != nil {
		t.Fatal(err)
	}

	env.start(t, "a.mp4")
	state := env.waitStatus(t, "a.mp4", domain.StatusCompleted)
	if state.BytesTransferred != 500 {
		t.Errorf("BytesTransferred = %d, want 500", state.BytesTransferred)
	}
	assertContent(t, env.fs.FinalPath("a.mp4"), content)
}

func TestManager_ShortStreamFails(t *testing.T) {
	env := newTestEnv(t, testContent(600), nil)
	env.fetcher.total = 1000

	env.start(t, "a.mp4")
	state := env.waitStatus(t, "a.mp4", domain.StatusFailed)

	if state.BytesTransferred != 600 {
		t.Errorf("BytesTransferred = %d, want 600", state.BytesTransferred)
	}
	if !strings.Contains(state.LastError, "unexpected EOF") {
		t.Errorf("LastError = %q", state.LastError)
	}
	if size := fileSize(t, env.fs.PartialPath("a.mp4")); size != 600 {
		t.Errorf("partial size = %d, want 600 (kept for resume)", size)
	}
	if env.fs.FileExists(env.fs.FinalPath("a.mp4")) {
		t.Error("final file exists after failure")
	}
}

func TestManager_ExcessBytesTruncated(t *testing.T) {
	content := testContent(800)
	env := newTestEnv(t, content, nil)
	env.fetcher.total = 500

	env.start(t, "a.mp4")
	state := env.waitStatus(t, "a.mp4", domain.StatusCompleted)

	if state.BytesTransferred != 500 {
		t.Errorf("BytesTransferred = %d, want 500", state.BytesTransferred)
	}
	assertContent(t, env.fs.FinalPath("a.mp4"), content[:500])
}

func TestManager_UnknownSize(t *testing.T) {
	content := testContent(1000)
	env := newTestEnv(t, content, nil)
	env.fetcher.total = domain.UnknownSize
	env.fetcher.block(500)

	env.start(t, "a.mp4")
	state := env.waitBytes(t, "a.mp4", 500)
	if state.Percent != -1 {
		t.Errorf("Percent = %v, want -1", state.Percent)
	}
	if state.ETA.Kind != domain.ETACalculating {
		t.Errorf("ETA = %v, want calculating", state.ETA)
	}

	env.fetcher.release()
	state = env.waitStatus(t, "a.mp4", domain.StatusCompleted)
	if state.TotalBytes != 1000 {
		t.Errorf("TotalBytes = %d, want 1000", state.TotalBytes)
	}
}

func TestManager_ProgressMonotonic(t *testing.T) {
	env := newTestEnv(t, testContent(5000), nil)

	env.start(t, "a.mp4")
	env.waitStatus(t, "a.mp4", domain.StatusCompleted)

	recorded := env.store.recorded()
	if len(recorded) < 2 {
		t.Fatalf("recorded %d progress updates, want several", len(recorded))
	}
	for i := 1; i < len(recorded); i++ {
		if recorded[i] < recorded[i-1] {
			t.Fatalf("progress decreased at update %d: %d -> %d", i, recorded[i-1], recorded[i])
		}
	}
}

func TestManager_PauseErrors(t *testing.T) {
	env := newTestEnv(t, testContent(100), nil)

	if err := env.manager.Pause("missing.mp4"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Pause(missing) error = %v, want ErrNotFound", err)
	}

	env.start(t, "a.mp4")
	env.waitStatus(t, "a.mp4", domain.StatusCompleted)

	if err := env.manager.Pause("a.mp4"); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Errorf("Pause(completed) error = %v, want ErrInvalidStateTransition", err)
	}
}

func TestManager_CompletedEntryWithMissingFileRestarts(t *testing.T) {
	content := testContent(300)
	env := newTestEnv(t, content, nil)

	env.start(t, "a.mp4")
	env.waitStatus(t, "a.mp4", domain.StatusCompleted)

	if err := os.Remove(env.fs.FinalPath("a.mp4")); err != nil {
		t.Fatal(err)
	}

	res := env.start(t, "a.mp4")
	if res.AlreadyComplete {
		t.Error("AlreadyComplete = true for a missing final file")
	}
	env.waitStatus(t, "a.mp4", domain.StatusCompleted)
	assertContent(t, env.fs.FinalPath("a.mp4"), content)
}

func TestManager_InsufficientSpace(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinFreeBytes = 1 << 62
	env := newTestEnv(t, testContent(100), cfg)

	_, err := env.manager.Start(context.Background(), StartRequest{URL: "http://example.com/a", FileName: "a.mp4"})
	if !errors.Is(err, domain.ErrInsufficientSpace) {
		t.Fatalf("Start() error = %v, want ErrInsufficientSpace", err)
	}

	state, err := env.manager.Progress("a.mp4")
	if err != nil || state.Status != domain.StatusFailed {
		t.Errorf("Progress() = %+v, %v, want failed", state, err)
	}
}

func TestManager_DirectPolicy(t *testing.T) {
	content := testContent(1000)
	cfg := DefaultConfig()
	cfg.Policy = PolicyDirect
	env := newTestEnv(t, content, cfg)
	env.fetcher.block(400)

	env.start(t, "a.mp4")
	env.waitBytes(t, "a.mp4", 400)

	if env.fs.FileExists(env.fs.PartialPath("a.mp4")) {
		t.Error("direct policy created a partial file")
	}
	if err := env.manager.Pause("a.mp4"); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	env.waitStatus(t, "a.mp4", domain.StatusPaused)
	env.fetcher.release()

	// A paused direct download starts over instead of being reported complete
	res := env.start(t, "a.mp4")
	if res.AlreadyComplete || res.ResumedFrom != 0 {
		t.Errorf("Start() = %+v, want a fresh stream", res)
	}
	env.waitStatus(t, "a.mp4", domain.StatusCompleted)
	assertContent(t, env.fs.FinalPath("a.mp4"), content)

	if calls := env.fetcher.calls(); len(calls) != 2 || calls[1] != 0 {
		t.Errorf("range requests = %v, want [0 0]", calls)
	}

	res = env.start(t, "a.mp4")
	if !res.AlreadyComplete {
		t.Error("AlreadyComplete = false after completion")
	}
}

func TestManager_Shutdown(t *testing.T) {
	env := newTestEnv(t, testContent(1000), nil)
	env.fetcher.block(300)

	env.start(t, "a.mp4")
	env.waitBytes(t, "a.mp4", 300)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := env.manager.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	state, err := env.manager.Progress("a.mp4")
	if err != nil || state.Status != domain.StatusPaused {
		t.Errorf("Progress() = %+v, %v, want paused", state, err)
	}
	if size := fileSize(t, env.fs.PartialPath("a.mp4")); size != 300 {
		t.Errorf("partial size = %d, want 300", size)
	}

	_, err = env.manager.Start(context.Background(), StartRequest{URL: "http://example.com/b", FileName: "b.mp4"})
	if !errors.Is(err, ErrShutdown) {
		t.Errorf("Start() after Shutdown error = %v, want ErrShutdown", err)
	}
}

func TestManager_ListAndConcurrentDownloads(t *testing.T) {
	env := newTestEnv(t, testContent(2000), nil)

	for _, name := range []string{"a.mp4", "b.mp4", "c.mp4"} {
		env.start(t, name)
	}
	for _, name := range []string{"a.mp4", "b.mp4", "c.mp4"} {
		env.waitStatus(t, name, domain.StatusCompleted)
	}

	list := env.manager.List()
	if len(list) != 3 {
		t.Fatalf("List() returned %d entries, want 3", len(list))
	}
	if list[0].ID != "a.mp4" || list[2].ID != "c.mp4" {
		t.Errorf("List() not ordered by id: %v, %v", list[0].ID, list[2].ID)
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{in: "", want: PolicyResume},
		{in: "resume", want: PolicyResume},
		{in: " Direct ", want: PolicyDirect},
		{in: "parallel", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
