package agent

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/monitor-judicial/whatsapp-agent/internal/currency"
	"github.com/monitor-judicial/whatsapp-agent/internal/domain"
	"github.com/monitor-judicial/whatsapp-agent/internal/executor"
	"github.com/monitor-judicial/whatsapp-agent/internal/llm"
	"github.com/monitor-judicial/whatsapp-agent/internal/store"
)

var testZone = time.FixedZone("CST", -6*3600)

func testNow() time.Time {
	return time.Date(2026, time.January, 20, 10, 0, 0, 0, testZone)
}

// step produces one scripted model response. It may read the request to
// pick up ids returned by earlier tool results.
type step func(t *testing.T, req *llm.Request) (*llm.Response, error)

// scriptedProvider replays steps in order and records every request.
type scriptedProvider struct {
	t        *testing.T
	name     string
	mu       sync.Mutex
	steps    []step
	requests []*llm.Request
}

func newScripted(t *testing.T, name string, steps ...step) *scriptedProvider {
	return &scriptedProvider{t: t, name: name, steps: steps}
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if len(p.steps) == 0 {
		return nil, errors.New("script exhausted")
	}
	next := p.steps[0]
	p.steps = p.steps[1:]
	return next(p.t, req)
}

func (p *scriptedProvider) add(steps ...step) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append(p.steps, steps...)
}

var callSeq int

func call(name string, args map[string]any) step {
	return func(*testing.T, *llm.Request) (*llm.Response, error) {
		callSeq++
		return &llm.Response{ToolCalls: []llm.ToolCall{{ID: fmt.Sprintf("call_%d", callSeq), Name: name, Args: args}}}, nil
	}
}

// callWith builds arguments from the request, typically from an id the
// previous tool result surfaced.
func callWith(name string, build func(t *testing.T, req *llm.Request) map[string]any) step {
	return func(t *testing.T, req *llm.Request) (*llm.Response, error) {
		return call(name, build(t, req))(t, req)
	}
}

func say(text string) step {
	return func(*testing.T, *llm.Request) (*llm.Response, error) {
		return &llm.Response{Text: text}, nil
	}
}

func fail(err error) step {
	return func(*testing.T, *llm.Request) (*llm.Response, error) {
		return nil, err
	}
}

func lastToolResult(t *testing.T, history []llm.Message) llm.ToolResult {
	t.Helper()
	for i := len(history) - 1; i >= 0; i-- {
		if rs := history[i].ToolResults; len(rs) > 0 {
			return rs[len(rs)-1]
		}
	}
	t.Fatalf("no tool result in history")
	return llm.ToolResult{}
}

func firstID(key string) func(t *testing.T, req *llm.Request) string {
	return func(t *testing.T, req *llm.Request) string {
		t.Helper()
		ids := stringList(lastToolResult(t, req.History).Response[key])
		if len(ids) == 0 {
			t.Fatalf("last tool result surfaced no %s: %+v", key, lastToolResult(t, req.History).Response)
		}
		return ids[0]
	}
}

// toolResults returns every tool result named name, in order.
func toolResults(history []llm.Message, name string) []llm.ToolResult {
	var out []llm.ToolResult
	for _, m := range history {
		for _, r := range m.ToolResults {
			if r.Name == name {
				out = append(out, r)
			}
		}
	}
	return out
}

type fixture struct {
	store   *store.SQLiteStore
	exec    *executor.Executor
	profile *domain.UserProfile
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "agent.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	profile := &domain.UserProfile{UserID: "u1", FullName: "Lic. Ana Ruiz", Phone: "+525512345678"}
	if err := s.UpsertUserProfile(context.Background(), profile); err != nil {
		t.Fatalf("UpsertUserProfile: %v", err)
	}
	exec := executor.New(s, currency.NewDetector(domain.CurrencyMXN), executor.Options{
		StoreTimeout:    time.Second,
		DefaultLocation: testZone,
		Now:             testNow,
	})
	return &fixture{store: s, exec: exec, profile: profile}
}

func (f *fixture) orchestrator(providers ...llm.Provider) *Orchestrator {
	o := NewOrchestrator(llm.NewRouter(time.Second, providers...), f.exec, DefaultConfig())
	o.now = testNow
	return o
}

func (f *fixture) seedCase(t *testing.T, c *domain.Case) *domain.Case {
	t.Helper()
	c.UserID = f.profile.UserID
	if err := f.store.CreateCase(context.Background(), c); err != nil {
		t.Fatalf("CreateCase: %v", err)
	}
	return c
}

func (f *fixture) remaining(t *testing.T, caseID string) float64 {
	t.Helper()
	bal, err := f.store.GetBalance(context.Background(), f.profile.UserID, caseID)
	if err != nil || bal == nil {
		t.Fatalf("GetBalance: %+v %v", bal, err)
	}
	return bal.Remaining()
}
