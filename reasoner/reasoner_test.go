package reasoner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookseekers/bookflow/core"
)

type flakyProvider struct {
	failures int
	calls    int
}

func (p *flakyProvider) Complete(ctx context.Context, req core.ReasonRequest) (string, error) {
	p.calls++
	if p.calls <= p.failures {
		return "", errors.New("transient backend failure")
	}
	return "ok", nil
}

func (p *flakyProvider) Info() string { return "flaky" }

func TestAdapterRetriesOnceOnTransientFailure(t *testing.T) {
	p := &flakyProvider{failures: 1}
	a := New(p)

	out, err := a.Invoke(context.Background(), core.ReasonRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 2, p.calls)
}

func TestAdapterGivesUpAfterRetries(t *testing.T) {
	p := &flakyProvider{failures: 10}
	a := New(p)

	_, err := a.Invoke(context.Background(), core.ReasonRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrService))
	assert.Equal(t, 2, p.calls, "one retry only")
}

type hangingProvider struct{}

func (hangingProvider) Complete(ctx context.Context, req core.ReasonRequest) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (hangingProvider) Info() string { return "hanging" }

func TestAdapterClassifiesTimeout(t *testing.T) {
	a := New(hangingProvider{}, func(o *Options) {
		o.Timeout = 20 * time.Millisecond
		o.MaxRetries = 0
	})

	start := time.Now()
	_, err := a.Invoke(context.Background(), core.ReasonRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Less(t, time.Since(start), time.Second)
}

func TestAdapterStopsOnParentCancel(t *testing.T) {
	p := &flakyProvider{failures: 10}
	a := New(p, func(o *Options) { o.MaxRetries = 5 })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Invoke(ctx, core.ReasonRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.Zero(t, p.calls, "no attempts after parent cancel")
}

func TestMockRecordsCalls(t *testing.T) {
	m := NewMock(func(req core.ReasonRequest) (string, error) {
		return "scripted", nil
	})

	out, err := m.Invoke(context.Background(), core.ReasonRequest{Prompt: "a"})
	require.NoError(t, err)
	assert.Equal(t, "scripted", out)

	_, _ = m.Invoke(context.Background(), core.ReasonRequest{Prompt: "b"})
	require.Equal(t, 2, m.CallCount())
	assert.Equal(t, "a", m.Calls()[0].Prompt)
	assert.Equal(t, "b", m.Calls()[1].Prompt)
}
