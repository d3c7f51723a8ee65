package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xaenox/engagebot/internal/harvest"
	"github.com/xaenox/engagebot/internal/llm"
	"github.com/xaenox/engagebot/internal/models"
)

type staticSource struct{ items []harvest.RawItem }

func (s staticSource) CurrentBatch(context.Context) ([]harvest.RawItem, error) { return s.items, nil }
func (s staticSource) Advance(context.Context) (bool, error)                    { return false, nil }

func post(id, handle, text string) harvest.RawItem {
	return harvest.RawItem{
		Href:      fmt.Sprintf("https://x.com/%s/status/%s", handle, id),
		TextParts: []string{text},
		Handle:    "@" + handle,
		Counts:    map[string]string{harvest.CountLikes: "10", harvest.CountRetweets: "2"},
	}
}

type fakeSession struct {
	profiles map[string][]harvest.RawItem
	searches map[string][]harvest.RawItem

	actionErr error
	onAction  func(ctx context.Context)

	mu       sync.Mutex
	likes    []string
	posts    []string
	replies  []string
	retweets []string
	quotes   map[string]string
	closed   bool
}

func (f *fakeSession) Profile(_ context.Context, url string) (harvest.Source, error) {
	items, ok := f.profiles[url]
	if !ok {
		return nil, errors.New("profile not found")
	}
	return staticSource{items: items}, nil
}

func (f *fakeSession) Search(_ context.Context, keyword string) (harvest.Source, error) {
	return staticSource{items: f.searches[keyword]}, nil
}

func (f *fakeSession) act(ctx context.Context, record func()) error {
	if f.onAction != nil {
		f.onAction(ctx)
	}
	if f.actionErr != nil {
		return f.actionErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	record()
	return nil
}

func (f *fakeSession) Like(ctx context.Context, id, _ string) error {
	return f.act(ctx, func() { f.likes = append(f.likes, id) })
}

func (f *fakeSession) Post(ctx context.Context, text string, _ []string) error {
	return f.act(ctx, func() { f.posts = append(f.posts, text) })
}

func (f *fakeSession) Reply(ctx context.Context, c *models.Candidate, text string) error {
	return f.act(ctx, func() { f.replies = append(f.replies, c.ID+":"+text) })
}

func (f *fakeSession) RetweetOrQuote(ctx context.Context, c *models.Candidate, quote string) error {
	return f.act(ctx, func() {
		if quote == "" {
			f.retweets = append(f.retweets, c.ID)
			return
		}
		if f.quotes == nil {
			f.quotes = map[string]string{}
		}
		f.quotes[c.ID] = quote
	})
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeConnector struct {
	sessions map[string]*fakeSession
	errs     map[string]error
	panics   map[string]bool

	mu        sync.Mutex
	connected []string
}

func (f *fakeConnector) Connect(_ context.Context, p *models.AccountPolicy) (Session, error) {
	f.mu.Lock()
	f.connected = append(f.connected, p.AccountID)
	f.mu.Unlock()
	if f.panics[p.AccountID] {
		panic("driver crashed")
	}
	if err := f.errs[p.AccountID]; err != nil {
		return nil, err
	}
	return f.sessions[p.AccountID], nil
}

type fakeGenerator struct {
	text string
	err  error

	mu      sync.Mutex
	prompts []llm.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req llm.Request) (llm.Result, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, req)
	f.mu.Unlock()
	if f.err != nil {
		return llm.Result{}, f.err
	}
	return llm.Result{Text: f.text, Provider: "fake"}, nil
}

func (f *fakeGenerator) GenerateStructured(context.Context, llm.StructuredRequest) (map[string]any, error) {
	return nil, llm.ErrNoResponse
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}
