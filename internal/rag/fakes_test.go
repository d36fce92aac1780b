package rag

import (
	"context"
	"errors"
	"sync"

	"github.com/Aman-CERP/onedesk/internal/llm"
	"github.com/Aman-CERP/onedesk/internal/store"
)

// fakeEmbedder returns a fixed vector and counts calls.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	vec   []float32
	err   error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fakeEmbedder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeIndex returns canned results truncated to k.
type fakeIndex struct {
	results []store.Result
	err     error
	lastK   int
}

func (f *fakeIndex) Search(query []float32, k int) ([]store.Result, error) {
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.results) {
		return f.results[:k], nil
	}
	return f.results, nil
}

// fakeLLM records the prompt it was given.
type fakeLLM struct {
	mu       sync.Mutex
	reply    string
	err      error
	calls    int
	messages []llm.Message
}

func (f *fakeLLM) Generate(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.messages = messages
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) Model() string { return "fake-model" }

func (f *fakeLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var errBackendDown = errors.New("connection refused")
