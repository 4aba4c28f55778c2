package service

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-autograder/internal/dto"
	"github.com/noah-isme/gema-autograder/internal/models"
	"github.com/noah-isme/gema-autograder/pkg/ai"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type graderStub struct {
	mu      sync.Mutex
	calls   []ai.SubmissionContent
	results map[string]ai.GradingResult
	errs    map[string]error
	result  ai.GradingResult
	block   chan struct{}
	started chan struct{}
}

func newGraderStub(result ai.GradingResult) *graderStub {
	return &graderStub{
		result:  result,
		results: map[string]ai.GradingResult{},
		errs:    map[string]error{},
	}
}

func (g *graderStub) Grade(ctx context.Context, content ai.SubmissionContent) (ai.GradingResult, error) {
	g.mu.Lock()
	g.calls = append(g.calls, content)
	block, started := g.block, g.started
	err, failing := g.errs[content.Data]
	result, custom := g.results[content.Data]
	g.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ai.GradingResult{}, ctx.Err()
		}
	}
	if failing {
		return ai.GradingResult{}, err
	}
	if custom {
		return result, nil
	}
	return g.result, nil
}

func (g *graderStub) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type historyRepoStub struct {
	mu        sync.Mutex
	loaded    []models.HistoryItem
	loadErr   error
	appended  []models.HistoryItem
	appendErr error
}

func (r *historyRepoStub) Load(context.Context) ([]models.HistoryItem, error) {
	return r.loaded, r.loadErr
}

func (r *historyRepoStub) Append(_ context.Context, item models.HistoryItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	r.appended = append(r.appended, item)
	return nil
}

type failingFile struct {
	name string
}

func (f failingFile) Name() string        { return f.name }
func (f failingFile) ContentType() string { return "text/plain" }
func (f failingFile) Open() (io.ReadCloser, error) {
	return nil, errors.New("handle revoked")
}

type publisherStub struct {
	mu        sync.Mutex
	snapshots []dto.QueueSnapshotResponse
}

func (p *publisherStub) Publish(_ context.Context, snapshot dto.QueueSnapshotResponse) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, snapshot)
}

func (p *publisherStub) all() []dto.QueueSnapshotResponse {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]dto.QueueSnapshotResponse, len(p.snapshots))
	copy(out, p.snapshots)
	return out
}
