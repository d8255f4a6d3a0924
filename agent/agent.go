// Package agent defines the policy units the coordinator dispatches: each
// agent owns a role prompt, a channel set and an allowed tool set, fans its
// tool calls out concurrently, and synthesizes one branch result. Agents
// never invent content: when every tool comes back empty the branch reports
// a fixed no-result message instead of asking the reasoner to improvise.
package agent

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/bookseekers/bookflow/core"
	"github.com/bookseekers/bookflow/tool"
)

// Agent names used by the default workflow.
const (
	GeneralName      = "general_agent"
	GeneralVoiceName = "general_voice_agent"
	SalesName        = "sales_agent"
)

// No-result messages per capability. Fixed strings on purpose: an empty
// tool outcome must never be dressed up by the reasoner.
const (
	noBooksMessage  = "I couldn't find any books matching your criteria. Could you tell me a bit more about what you're looking for?"
	noAnswerMessage = "Sorry, I couldn't find an answer to your question."
	noMatchMessage  = "I couldn't find a match for that."
)

// Options configures an Agent.
type Options struct {
	// Instructions is the role prompt used for synthesis.
	Instructions string
	// Channels lists the surfaces the agent serves.
	Channels []core.Channel
	// Tools is the agent's allowed tool set.
	Tools []string
	// Dispatchable decides whether the coordinator should dispatch the
	// agent for the extracted parameters. Nil means always.
	Dispatchable func(p core.Parameters) bool
}

// Agent is one dispatchable branch of the workflow. It implements the
// graph node contract; its branch key is its name.
type Agent struct {
	name         string
	instructions string
	channels     map[core.Channel]bool
	tools        []string
	dispatchable func(p core.Parameters) bool
}

// New builds an agent with the given name.
func New(name string, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Channels: []core.Channel{core.ChannelChat},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	channels := make(map[core.Channel]bool, len(opts.Channels))
	for _, c := range opts.Channels {
		channels[c] = true
	}
	return &Agent{
		name:         name,
		instructions: opts.Instructions,
		channels:     channels,
		tools:        opts.Tools,
		dispatchable: opts.Dispatchable,
	}
}

// NewGeneral is the default chat agent: full tool access, always
// dispatchable.
func NewGeneral() *Agent {
	return New(GeneralName, func(o *Options) {
		o.Instructions = "You are a friendly bookstore assistant. Answer using only the tool findings provided. Be concise and helpful."
		o.Channels = []core.Channel{core.ChannelChat}
		o.Tools = []string{tool.BookSearchName, tool.FAQSearchName, tool.BookDetailsName}
	})
}

// NewGeneralVoice is the voice-surface agent. Voice output has to read
// well aloud, so it sticks to FAQ answers.
func NewGeneralVoice() *Agent {
	return New(GeneralVoiceName, func(o *Options) {
		o.Instructions = "You are a bookstore voice assistant. Answer in short spoken-style sentences using only the tool findings provided."
		o.Channels = []core.Channel{core.ChannelVoice}
		o.Tools = []string{tool.FAQSearchName}
	})
}

// NewSales is the purchase-intent agent, dispatched alongside the general
// agent when the turn carries buying signals.
func NewSales() *Agent {
	return New(SalesName, func(o *Options) {
		o.Instructions = "You are a bookstore sales assistant. Recommend the best purchase within the customer's budget using only the tool findings provided."
		o.Channels = []core.Channel{core.ChannelChat}
		o.Tools = []string{tool.BookSearchName}
		o.Dispatchable = func(p core.Parameters) bool {
			return p.Budget != nil || strings.EqualFold(p.Purpose, "gift")
		}
	})
}

// Name implements the graph node contract; it is also the branch key.
func (a *Agent) Name() string { return a.name }

// Supports reports whether the agent serves the channel.
func (a *Agent) Supports(c core.Channel) bool { return a.channels[c] }

// Tools returns the agent's allowed tool set.
func (a *Agent) Tools() []string { return a.tools }

// Dispatchable reports whether the agent should be dispatched for the
// extracted parameters.
func (a *Agent) Dispatchable(p core.Parameters) bool {
	if a.dispatchable == nil {
		return true
	}
	return a.dispatchable(p)
}

type toolCall struct {
	name string
	args map[string]any
}

type toolOutcome struct {
	call toolCall
	res  core.ToolResult
	err  error
}

// Run executes the agent branch: select tools, fan the calls out, post
// per-tool sub-results, then synthesize and post the branch result.
func (a *Agent) Run(rc *core.RunContext, st *core.State) error {
	params := st.Parameters()
	allowed := a.allowedTools(st)
	calls := a.selectTools(params, st.Request().Text, allowed)

	outcomes := a.callTools(rc, calls)

	payload := make(map[string]any)
	var findings []toolOutcome
	allEmpty := true
	for _, out := range outcomes {
		subKey := a.name + "/" + out.call.name

		if out.err != nil {
			kind := core.KindTool
			var tErr *tool.Error
			if errors.As(out.err, &tErr) && tErr.Code == tool.ErrorCodeTimeout {
				kind = core.KindTimeout
			}
			st.RecordError(core.NewNodeError(subKey, kind, true, "%s", out.err.Error()))
			continue
		}

		status := core.StatusOK
		if out.res.NoResult {
			status = core.StatusNoResult
		} else {
			allEmpty = false
			findings = append(findings, out)
			payload[out.call.name] = out.res.Payload
		}
		if err := st.PutResult(subKey, core.BranchResult{
			Payload: out.res.Payload,
			Status:  status,
		}); err != nil {
			st.RecordError(core.NewNodeError(subKey, core.KindBarrier, false, "%s", err.Error()))
			// The branch itself must still conclude, or the barrier would
			// hold the merge join back forever.
			st.RecordError(core.NewNodeError(a.name, core.KindBarrier, false,
				"branch aborted: %s", err.Error()))
			return nil
		}
	}

	var result core.BranchResult
	if allEmpty {
		result = core.BranchResult{
			Text:   a.noResultMessage(calls),
			Status: core.StatusNoResult,
		}
	} else {
		text := a.synthesize(rc, st, findings)
		result = core.BranchResult{
			Text:    text,
			Payload: payload,
			Status:  core.StatusOK,
		}
	}

	if err := st.PutResult(a.name, result); err != nil {
		st.RecordError(core.NewNodeError(a.name, core.KindBarrier, false, "%s", err.Error()))
	}
	return nil
}

// allowedTools intersects the coordinator's allowance with the agent's own
// tool set, falling back to the agent's set when the coordinator did not
// narrow it.
func (a *Agent) allowedTools(st *core.State) []string {
	routing := st.Routing()
	granted, ok := routing.AllowedTools[a.name]
	if !ok {
		return a.tools
	}
	own := make(map[string]bool, len(a.tools))
	for _, t := range a.tools {
		own[t] = true
	}
	out := make([]string, 0, len(granted))
	for _, t := range granted {
		if own[t] {
			out = append(out, t)
		}
	}
	return out
}

// selectTools maps extracted parameters to tool calls deterministically.
// When nothing matches, the raw utterance goes to the first capable tool
// so the branch always produces an outcome.
func (a *Agent) selectTools(params core.Parameters, rawText string, allowed []string) []toolCall {
	has := make(map[string]bool, len(allowed))
	for _, t := range allowed {
		has[t] = true
	}

	var calls []toolCall
	if has[tool.FAQSearchName] && params.FAQQuery != "" {
		calls = append(calls, toolCall{
			name: tool.FAQSearchName,
			args: map[string]any{"query": params.FAQQuery},
		})
	}
	if has[tool.BookSearchName] && params.WantsBooks() {
		calls = append(calls, toolCall{
			name: tool.BookSearchName,
			args: bookSearchArgs(params, rawText),
		})
	}
	if has[tool.BookDetailsName] && params.WantsDetails() {
		args := map[string]any{}
		if params.Title != "" {
			args["title"] = params.Title
		}
		if params.Author != "" {
			args["author"] = params.Author
		}
		if params.ISBN != "" {
			args["isbn"] = params.ISBN
		}
		calls = append(calls, toolCall{name: tool.BookDetailsName, args: args})
	}
	if len(calls) > 0 {
		return calls
	}

	// Nothing extracted: route the raw utterance to the first capable
	// tool in a fixed preference order.
	for _, name := range []string{tool.FAQSearchName, tool.BookSearchName} {
		if has[name] {
			return []toolCall{{name: name, args: map[string]any{"query": rawText}}}
		}
	}
	return nil
}

func bookSearchArgs(params core.Parameters, rawText string) map[string]any {
	args := map[string]any{"query": rawText}
	if params.Age != nil {
		args["age"] = *params.Age
	}
	if params.AgeFrom != nil {
		args["age_from"] = *params.AgeFrom
	}
	if params.AgeTo != nil {
		args["age_to"] = *params.AgeTo
	}
	if params.Genre != "" {
		args["genre"] = params.Genre
	}
	if params.Budget != nil {
		args["budget"] = *params.Budget
	}
	if params.Purpose != "" {
		args["purpose"] = params.Purpose
	}
	return args
}

// callTools fans the calls out concurrently and returns outcomes in the
// original call order.
func (a *Agent) callTools(rc *core.RunContext, calls []toolCall) []toolOutcome {
	outcomes := make([]toolOutcome, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call toolCall) {
			defer wg.Done()
			res, err := rc.Tools.Call(rc, call.name, call.args)
			outcomes[i] = toolOutcome{call: call, res: res, err: err}
		}(i, call)
	}
	wg.Wait()
	return outcomes
}

// noResultMessage picks the fixed honesty message for the tool mix that
// came back empty.
func (a *Agent) noResultMessage(calls []toolCall) string {
	triedBooks := false
	triedFAQ := false
	for _, c := range calls {
		switch c.name {
		case tool.BookSearchName, tool.BookDetailsName:
			triedBooks = true
		case tool.FAQSearchName:
			triedFAQ = true
		}
	}
	switch {
	case triedBooks && !triedFAQ:
		return noBooksMessage
	case triedFAQ && !triedBooks:
		return noAnswerMessage
	default:
		return noMatchMessage
	}
}

// synthesize turns tool findings into a reply via the reasoner, falling
// back to a deterministic rendering when the reasoner is unavailable. The
// fallback keeps the branch useful: the findings are real data.
func (a *Agent) synthesize(rc *core.RunContext, st *core.State, findings []toolOutcome) string {
	prompt := buildSynthesisPrompt(st.Request().Text, findings)
	text, err := rc.Reasoner.Invoke(rc, core.ReasonRequest{
		Instructions: a.instructions,
		Prompt:       prompt,
		Context:      st.HistoryContext(),
	})
	if err == nil && strings.TrimSpace(text) != "" {
		return text
	}
	if err != nil {
		st.RecordError(core.NewNodeError(a.name, core.KindTimeout, true,
			"synthesis degraded: %s", err.Error()))
		if rc.Logger != nil {
			rc.Logger.Warn("synthesis fell back to direct rendering", "agent", a.name, "error", err)
		}
	}
	return renderFindings(findings)
}

func buildSynthesisPrompt(userText string, findings []toolOutcome) string {
	var b strings.Builder
	b.WriteString("User request: ")
	b.WriteString(userText)
	b.WriteString("\n\nTool findings:\n")
	for _, f := range findings {
		encoded, err := sonic.MarshalString(f.res.Payload)
		if err != nil {
			encoded = fmt.Sprintf("%v", f.res.Payload)
		}
		fmt.Fprintf(&b, "- %s: %s\n", f.call.name, encoded)
	}
	b.WriteString("\nAnswer the request using only these findings.")
	return b.String()
}

// renderFindings is the reasonerless fallback: list what the tools found.
func renderFindings(findings []toolOutcome) string {
	var parts []string
	for _, f := range findings {
		switch f.call.name {
		case tool.BookSearchName:
			parts = append(parts, renderBooks(f.res.Payload))
		case tool.FAQSearchName:
			if answer, ok := f.res.Payload["answer"].(string); ok {
				parts = append(parts, answer)
			}
		case tool.BookDetailsName:
			if book, ok := f.res.Payload["book"].(map[string]any); ok {
				parts = append(parts, renderBookLine(book))
			}
		}
	}
	if len(parts) == 0 {
		return noMatchMessage
	}
	return strings.Join(parts, "\n")
}

func renderBooks(payload map[string]any) string {
	books, ok := payload["books"].([]map[string]any)
	if !ok || len(books) == 0 {
		return noBooksMessage
	}
	lines := make([]string, 0, len(books)+1)
	lines = append(lines, "Here is what I found:")
	for _, b := range books {
		lines = append(lines, "- "+renderBookLine(b))
	}
	sort.Strings(lines[1:])
	return strings.Join(lines, "\n")
}

func renderBookLine(book map[string]any) string {
	title, _ := book["title"].(string)
	author, _ := book["author"].(string)
	price, hasPrice := book["price"].(float64)
	line := title
	if author != "" {
		line += " by " + author
	}
	if hasPrice {
		line += fmt.Sprintf(" ($%.2f)", price)
	}
	return line
}
