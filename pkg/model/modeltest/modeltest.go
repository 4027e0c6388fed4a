// Package modeltest provides a scriptable in-memory Provider for tests.
package modeltest

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/nstogner/forge/pkg/domain"
	"github.com/nstogner/forge/pkg/model"
)

// Reply is the scripted outcome of one call.
type Reply struct {
	Text string
	// Chunks, when set, are the deltas returned by Stream. Text is used as a
	// single chunk otherwise.
	Chunks []string
	Err    error
	Usage  domain.Usage
}

// Provider answers Complete and Stream from a per-model script. Calls are
// recorded in order.
type Provider struct {
	ProviderName string
	Models       []string

	// Replies maps a model id to a queue of replies. The last reply repeats
	// once the queue is drained.
	Replies map[string][]Reply
	// Func, when set, overrides Replies.
	Func func(req model.Request) Reply

	mu    sync.Mutex
	calls []model.Request
	used  map[string]int
}

// New returns a Provider named name.
func New(name string) *Provider {
	return &Provider{ProviderName: name, Replies: map[string][]Reply{}}
}

// On appends scripted replies for modelID and returns p for chaining.
func (p *Provider) On(modelID string, replies ...Reply) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Replies == nil {
		p.Replies = map[string][]Reply{}
	}
	p.Replies[modelID] = append(p.Replies[modelID], replies...)
	return p
}

func (p *Provider) Name() string { return p.ProviderName }

func (p *Provider) List(ctx context.Context) ([]domain.Model, error) {
	out := make([]domain.Model, 0, len(p.Models))
	for _, m := range p.Models {
		out = append(out, domain.Model{ID: m, Name: m, Provider: p.ProviderName})
	}
	return out, nil
}

func (p *Provider) Complete(ctx context.Context, req model.Request) (*model.Completion, error) {
	r := p.next(req)
	if r.Err != nil {
		return nil, r.Err
	}
	text := r.Text
	if text == "" && len(r.Chunks) > 0 {
		for _, c := range r.Chunks {
			text += c
		}
	}
	return &model.Completion{Text: text, Usage: r.Usage}, nil
}

func (p *Provider) Stream(ctx context.Context, req model.Request) (model.ModelStream, error) {
	r := p.next(req)
	if r.Err != nil {
		return nil, r.Err
	}
	chunks := r.Chunks
	if chunks == nil {
		chunks = []string{r.Text}
	}
	return &Stream{Chunks: chunks}, nil
}

// Calls returns a copy of the recorded requests.
func (p *Provider) Calls() []model.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Request(nil), p.calls...)
}

// CallsFor returns how many calls targeted modelID.
func (p *Provider) CallsFor(modelID string) int {
	n := 0
	for _, c := range p.Calls() {
		if c.Model == modelID {
			n++
		}
	}
	return n
}

func (p *Provider) next(req model.Request) Reply {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if p.Func != nil {
		return p.Func(req)
	}
	queue := p.Replies[req.Model]
	if len(queue) == 0 {
		return Reply{Err: fmt.Errorf("modeltest: no reply scripted for model %q", req.Model)}
	}
	if p.used == nil {
		p.used = map[string]int{}
	}
	i := p.used[req.Model]
	if i >= len(queue) {
		i = len(queue) - 1
	}
	p.used[req.Model]++
	return queue[i]
}

// Stream replays fixed chunks, then an optional error instead of io.EOF.
type Stream struct {
	Chunks []string
	Err    error

	pos    int
	closed bool
}

func (s *Stream) Recv() (string, error) {
	if s.pos < len(s.Chunks) {
		c := s.Chunks[s.pos]
		s.pos++
		return c, nil
	}
	if s.Err != nil {
		return "", s.Err
	}
	return "", io.EOF
}

func (s *Stream) Close() error {
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool { return s.closed }
