package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookseekers/bookflow/core"
	"github.com/bookseekers/bookflow/reasoner"
	"github.com/bookseekers/bookflow/tool"
)

type scriptedTools struct {
	responses map[string]core.ToolResult
	errs      map[string]error
	calls     []string
}

func (s *scriptedTools) Call(ctx context.Context, name string, args map[string]any) (core.ToolResult, error) {
	s.calls = append(s.calls, name)
	if err, ok := s.errs[name]; ok {
		return core.ToolResult{}, err
	}
	return s.responses[name], nil
}

func (s *scriptedTools) Has(name string) bool { return true }

func runContext(tools core.ToolRunner, r core.Reasoner) *core.RunContext {
	return &core.RunContext{
		Context:   context.Background(),
		RunID:     "run-1",
		SessionID: "sess-1",
		Reasoner:  r,
		Tools:     tools,
	}
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestAgentSelectsBookSearchFromParameters(t *testing.T) {
	tools := &scriptedTools{responses: map[string]core.ToolResult{
		tool.BookSearchName: {Payload: map[string]any{
			"books": []map[string]any{{"title": "The Little Dragon", "author": "M. Reed", "price": 12.99}},
		}},
	}}
	mock := reasoner.NewMock(func(req core.ReasonRequest) (string, error) {
		return "You might enjoy The Little Dragon.", nil
	})

	a := NewGeneral()
	st := core.NewState(core.Request{Text: "books for a 6 year old"}, "")
	st.SetParameters(core.Parameters{Age: intPtr(6)})

	require.NoError(t, a.Run(runContext(tools, mock), st))

	assert.Equal(t, []string{tool.BookSearchName}, tools.calls)

	res, ok := st.Result(GeneralName)
	require.True(t, ok)
	assert.Equal(t, core.StatusOK, res.Status)
	assert.Equal(t, "You might enjoy The Little Dragon.", res.Text)

	// The per-tool sub-result is posted under the composite key.
	sub, ok := st.Result(GeneralName + "/" + tool.BookSearchName)
	require.True(t, ok)
	assert.Equal(t, core.StatusOK, sub.Status)
}

func TestAgentNoResultHonesty(t *testing.T) {
	tools := &scriptedTools{responses: map[string]core.ToolResult{
		tool.BookSearchName: {NoResult: true},
	}}
	mock := reasoner.NewMock(nil)

	a := NewGeneral()
	st := core.NewState(core.Request{Text: "books about underwater basket weaving"}, "")
	st.SetParameters(core.Parameters{Genre: "underwater basket weaving"})

	require.NoError(t, a.Run(runContext(tools, mock), st))

	res, ok := st.Result(GeneralName)
	require.True(t, ok)
	assert.Equal(t, core.StatusNoResult, res.Status)
	assert.Equal(t, noBooksMessage, res.Text)
	// The reasoner is never asked to dress up an empty outcome.
	assert.Zero(t, mock.CallCount())
}

func TestAgentSynthesisFallbackOnReasonerFailure(t *testing.T) {
	tools := &scriptedTools{responses: map[string]core.ToolResult{
		tool.BookSearchName: {Payload: map[string]any{
			"books": []map[string]any{
				{"title": "Counting Stars", "author": "J. Okafor", "price": 18.50},
				{"title": "The Little Dragon", "author": "M. Reed", "price": 12.99},
			},
		}},
	}}
	mock := reasoner.NewMock(func(req core.ReasonRequest) (string, error) {
		return "", errors.New("provider down")
	})

	a := NewGeneral()
	st := core.NewState(core.Request{Text: "books for a 6 year old, budget $50"}, "")
	st.SetParameters(core.Parameters{Age: intPtr(6), Budget: floatPtr(50)})

	require.NoError(t, a.Run(runContext(tools, mock), st))

	res, ok := st.Result(GeneralName)
	require.True(t, ok)
	assert.Equal(t, core.StatusOK, res.Status)
	// Both findings survive in the deterministic rendering.
	assert.Contains(t, res.Text, "The Little Dragon")
	assert.Contains(t, res.Text, "Counting Stars")

	// Degradation is recorded, recoverably.
	errs := st.Errors()
	require.NotEmpty(t, errs)
	assert.True(t, errs[0].Recoverable)
}

func TestAgentRecordsToolTimeoutKind(t *testing.T) {
	tools := &scriptedTools{errs: map[string]error{
		tool.FAQSearchName: tool.NewError(tool.FAQSearchName, tool.ErrorCodeTimeout, "no response within 10s"),
	}}
	mock := reasoner.NewMock(nil)

	a := NewGeneralVoice()
	st := core.NewState(core.Request{Text: "when do you open?", Channel: core.ChannelVoice}, "")
	st.SetParameters(core.Parameters{FAQQuery: "when do you open"})

	require.NoError(t, a.Run(runContext(tools, mock), st))

	var timeoutErr *core.NodeError
	for _, e := range st.Errors() {
		if e.Kind == core.KindTimeout {
			timeoutErr = e
		}
	}
	require.NotNil(t, timeoutErr)
	assert.True(t, timeoutErr.Recoverable)

	// The branch still concludes with an honest no-result message.
	res, ok := st.Result(GeneralVoiceName)
	require.True(t, ok)
	assert.Equal(t, core.StatusNoResult, res.Status)
	assert.Equal(t, noAnswerMessage, res.Text)
}

func TestAgentFallsBackToRawQuery(t *testing.T) {
	tools := &scriptedTools{responses: map[string]core.ToolResult{
		tool.FAQSearchName: {Payload: map[string]any{"answer": "We are open 9-18.", "question": "hours", "score": 0.8}},
	}}
	mock := reasoner.NewMock(func(req core.ReasonRequest) (string, error) {
		return "We're open from 9 to 18.", nil
	})

	a := NewGeneral()
	st := core.NewState(core.Request{Text: "when are you open?"}, "")
	st.SetParameters(core.Parameters{}) // extraction found nothing

	require.NoError(t, a.Run(runContext(tools, mock), st))

	// Raw utterance routed to the first capable tool.
	assert.Equal(t, []string{tool.FAQSearchName}, tools.calls)

	res, ok := st.Result(GeneralName)
	require.True(t, ok)
	assert.Equal(t, core.StatusOK, res.Status)
}

func TestAgentDuplicateBranchWriteIsFatal(t *testing.T) {
	tools := &scriptedTools{responses: map[string]core.ToolResult{
		tool.FAQSearchName: {Payload: map[string]any{"answer": "yes", "question": "q", "score": 1.0}},
	}}
	mock := reasoner.NewMock(nil)

	a := NewGeneral()
	st := core.NewState(core.Request{Text: "ship abroad?"}, "")
	st.SetParameters(core.Parameters{FAQQuery: "shipping"})

	// Another writer already owns the branch key.
	require.NoError(t, st.PutResult(GeneralName, core.BranchResult{Status: core.StatusOK}))

	require.NoError(t, a.Run(runContext(tools, mock), st))

	assert.True(t, st.HasFatal())
	found := false
	for _, e := range st.Errors() {
		if e.Kind == core.KindBarrier && !e.Recoverable {
			found = true
		}
	}
	assert.True(t, found)
}

func TestAgentSubResultCollisionConcludesBranch(t *testing.T) {
	tools := &scriptedTools{responses: map[string]core.ToolResult{
		tool.FAQSearchName: {Payload: map[string]any{"answer": "yes", "question": "q", "score": 1.0}},
	}}
	mock := reasoner.NewMock(nil)

	a := NewGeneral()
	st := core.NewState(core.Request{Text: "do you ship abroad?"}, "")
	st.SetParameters(core.Parameters{FAQQuery: "shipping"})
	require.NoError(t, st.Dispatch(core.RoutingDecision{
		Agents:   []string{GeneralName},
		Branches: []string{GeneralName},
	}))

	// The composite key is already taken when the branch runs.
	require.NoError(t, st.PutResult(GeneralName+"/"+tool.FAQSearchName, core.BranchResult{Status: core.StatusOK}))

	require.NoError(t, a.Run(runContext(tools, mock), st))

	// The violation is fatal and attributed to the branch itself, so the
	// merge barrier can still fire and route the run to the error node.
	assert.True(t, st.FreshFatal(GeneralName))
	done, failed := st.BranchOutcome(GeneralName)
	assert.True(t, done)
	assert.True(t, failed)
	assert.True(t, st.BarrierComplete())

	_, ok := st.Result(GeneralName)
	assert.False(t, ok, "an aborted branch posts no result")
}

func TestSalesAgentDispatchPredicate(t *testing.T) {
	a := NewSales()
	assert.False(t, a.Dispatchable(core.Parameters{Genre: "fantasy"}))
	assert.True(t, a.Dispatchable(core.Parameters{Budget: floatPtr(30)}))
	assert.True(t, a.Dispatchable(core.Parameters{Purpose: "gift"}))
	assert.True(t, a.Supports(core.ChannelChat))
	assert.False(t, a.Supports(core.ChannelVoice))
}

func TestAgentRespectsCoordinatorToolAllowance(t *testing.T) {
	tools := &scriptedTools{responses: map[string]core.ToolResult{
		tool.FAQSearchName: {Payload: map[string]any{"answer": "yes", "question": "q", "score": 1.0}},
	}}
	mock := reasoner.NewMock(func(req core.ReasonRequest) (string, error) { return "yes", nil })

	a := NewGeneral()
	st := core.NewState(core.Request{Text: "do you ship abroad? also books for kids"}, "")
	st.SetParameters(core.Parameters{FAQQuery: "shipping", Genre: "kids"})
	require.NoError(t, st.Dispatch(core.RoutingDecision{
		Agents:       []string{GeneralName},
		AllowedTools: map[string][]string{GeneralName: {tool.FAQSearchName}},
		Branches:     []string{GeneralName},
	}))

	require.NoError(t, a.Run(runContext(tools, mock), st))

	// book_search was narrowed away by the coordinator.
	assert.Equal(t, []string{tool.FAQSearchName}, tools.calls)
}
