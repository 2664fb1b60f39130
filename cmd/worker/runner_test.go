package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/Regolith-Intelligence/internal/application/extraction"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
	"github.com/turtacn/Regolith-Intelligence/pkg/types/simulant"
)

type fakePipeline struct {
	mu      sync.Mutex
	reqs    []extraction.RunRequest
	release chan struct{}
	started chan struct{}
}

func (p *fakePipeline) Run(ctx context.Context, _ extraction.DocumentSource, req extraction.RunRequest) (*extraction.Report, error) {
	p.mu.Lock()
	p.reqs = append(p.reqs, req)
	p.mu.Unlock()
	if p.started != nil {
		p.started <- struct{}{}
	}
	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &extraction.Report{RunID: req.RunID, FilesProcessed: 1}, nil
}

type fakeLock struct {
	held     bool
	acquired int
	released int
}

func (l *fakeLock) Lock(context.Context) error { l.held = true; return nil }
func (l *fakeLock) TryLock(context.Context) (bool, error) {
	if l.held {
		return false, nil
	}
	l.held = true
	l.acquired++
	return true, nil
}
func (l *fakeLock) Unlock(context.Context) error { l.held = false; l.released++; return nil }
func (l *fakeLock) Extend(context.Context, time.Duration) (bool, error) {
	return l.held, nil
}

type docCall struct{ kind, dir string }

func newTestRunner(p *fakePipeline, lock *fakeLock) (*Runner, *[]docCall) {
	var calls []docCall
	docs := func(kind, dir string) (extraction.DocumentSource, error) {
		calls = append(calls, docCall{kind, dir})
		return extraction.NewDirSource(dir), nil
	}
	pipeline := func(context.Context) (Pipeline, error) { return p, nil }
	cfg := RunnerConfig{Source: "local", DocsDir: "docs"}
	if lock == nil {
		return NewRunner(cfg, pipeline, docs, nil, nil), &calls
	}
	return NewRunner(cfg, pipeline, docs, lock, nil), &calls
}

func TestRunner_Trigger(t *testing.T) {
	p := &fakePipeline{}
	lock := &fakeLock{}
	r, calls := newTestRunner(p, lock)

	rep, err := r.Trigger(context.Background(), "event", simulant.BatchRequested{
		RunID: "run-1", Prefix: "incoming", Simulant: "LHS-1", Mode: "conflicts", DryRun: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "run-1", rep.RunID)
	require.Len(t, p.reqs, 1)
	assert.Equal(t, extraction.RunRequest{RunID: "run-1", Simulant: "LHS-1", Mode: extraction.ModeConflicts, DryRun: true}, p.reqs[0])
	assert.Equal(t, []docCall{{"local", "incoming"}}, *calls)
	assert.Equal(t, 1, lock.acquired)
	assert.Equal(t, 1, lock.released)
	assert.False(t, lock.held)

	_, err = r.Trigger(context.Background(), "schedule", simulant.BatchRequested{})
	require.NoError(t, err)
	assert.Equal(t, docCall{"local", "docs"}, (*calls)[1])
	assert.Equal(t, extraction.ModeAuto, p.reqs[1].Mode)
}

func TestRunner_MinIOIgnoresPrefix(t *testing.T) {
	r, calls := newTestRunner(&fakePipeline{}, nil)
	_, err := r.Trigger(context.Background(), "event", simulant.BatchRequested{Source: "minio", Prefix: "x"})
	require.NoError(t, err)
	assert.Equal(t, []docCall{{"minio", "docs"}}, *calls)
}

func TestRunner_RejectsModes(t *testing.T) {
	p := &fakePipeline{}
	r, _ := newTestRunner(p, nil)

	_, err := r.Trigger(context.Background(), "event", simulant.BatchRequested{Mode: "interactive"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
	_, err = r.Trigger(context.Background(), "event", simulant.BatchRequested{Mode: "sometimes"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
	assert.Empty(t, p.reqs)
}

func TestRunner_SkipsWhenOtherWorkerHoldsLock(t *testing.T) {
	p := &fakePipeline{}
	lock := &fakeLock{held: true}
	r, _ := newTestRunner(p, lock)

	_, err := r.Trigger(context.Background(), "schedule", simulant.BatchRequested{})
	assert.ErrorIs(t, err, ErrBatchRunning)
	assert.Empty(t, p.reqs)
	assert.Zero(t, lock.released)
}

func TestRunner_OverlapAndShutdown(t *testing.T) {
	p := &fakePipeline{release: make(chan struct{}), started: make(chan struct{}, 1)}
	r, _ := newTestRunner(p, nil)

	done := make(chan error, 1)
	go func() {
		_, err := r.Trigger(context.Background(), "schedule", simulant.BatchRequested{})
		done <- err
	}()
	<-p.started

	_, err := r.Trigger(context.Background(), "watch", simulant.BatchRequested{})
	assert.ErrorIs(t, err, ErrBatchRunning)

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Shutdown(short), context.DeadlineExceeded)

	close(p.release)
	require.NoError(t, <-done)
	require.NoError(t, r.Shutdown(context.Background()))
}

func TestRunner_RefusesAfterShutdown(t *testing.T) {
	p := &fakePipeline{}
	r, _ := newTestRunner(p, nil)
	r.closing.Store(true)
	_, err := r.Trigger(context.Background(), "event", simulant.BatchRequested{})
	assert.ErrorIs(t, err, ErrShuttingDown)
	assert.Empty(t, p.reqs)
}

func TestDocWatcher_Debounces(t *testing.T) {
	dir := t.TempDir()
	var fired atomic.Int32
	w := NewDocWatcher(dir, 100*time.Millisecond, func(context.Context) { fired.Add(1) }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan error, 1)
	go func() { stopped <- w.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	for _, name := range []string{"a.txt", "b.pdf", "c.docx"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.bin"), []byte("x"), 0o644))

	require.Eventually(t, func() bool { return fired.Load() == 1 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load(), "a burst of writes triggers one run")

	cancel()
	assert.NoError(t, <-stopped)
}

func TestDocWatcher_IgnoresUnsupportedFiles(t *testing.T) {
	dir := t.TempDir()
	var fired atomic.Int32
	w := NewDocWatcher(dir, 50*time.Millisecond, func(context.Context) { fired.Add(1) }, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.bin"), []byte("x"), 0o644))
	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, fired.Load())
}

func TestDocWatcher_MissingDir(t *testing.T) {
	w := NewDocWatcher(filepath.Join(t.TempDir(), "absent"), time.Second, func(context.Context) {}, nil)
	assert.Error(t, w.Run(context.Background()))
}

func TestKVFields(t *testing.T) {
	fields := kvFields([]interface{}{"entry", 3, "next", "soon", "dangling"})
	require.Len(t, fields, 2)
	assert.Equal(t, "entry", fields[0].Key)
	assert.Equal(t, 3, fields[0].Value)
	assert.Equal(t, "soon", fields[1].Value)
}
