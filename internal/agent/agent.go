// Package agent implements the reasoning loop: a bounded sequence of model
// turns and tool turns over a single conversation, suspendable at streaming
// output and at human confirmation.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"fable/internal/llm"
	"fable/internal/logging"
	"fable/internal/session"
	"fable/internal/tools"
	"fable/internal/types"
)

// DefaultMaxSteps bounds the loop against runaway tool chains.
const DefaultMaxSteps = 20

// Emit receives the heterogeneous output stream of one loop invocation:
// text fragments, tool results, pending confirmations and the final answer.
type Emit func(item types.StreamItem)

// Config assembles an agent.
type Config struct {
	Name string
	// SystemPrompt seeds new conversations.
	SystemPrompt string
	// PromptTemplate wraps user input before it is appended as a Human
	// message. Placeholders: {user_input}, {env}.
	PromptTemplate string
	// Tools maps environment tags to visible tool names. The default tag
	// is used for sessions without an environment.
	Tools map[string][]string
	// FinalTool names the invocation that ends the task and carries the
	// final answer.
	FinalTool         string
	MaxSteps          int
	ParallelToolCalls bool
}

// Agent drives the loop for one configured persona. Agents are immutable
// and safe for concurrent use across sessions; per-session serialization is
// the caller's responsibility.
type Agent struct {
	name              string
	systemPrompt      string
	promptTemplate    string
	envTools          map[string][]string
	finalTool         string
	maxSteps          int
	parallelToolCalls bool

	registry *tools.Registry
	gateway  *llm.Gateway
}

func New(config Config, registry *tools.Registry, gateway *llm.Gateway) *Agent {
	maxSteps := config.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	envTools := config.Tools
	if envTools == nil {
		envTools = map[string][]string{}
	}
	if _, ok := envTools[tools.DefaultEnv]; !ok {
		envTools[tools.DefaultEnv] = nil
	}
	return &Agent{
		name:              config.Name,
		systemPrompt:      config.SystemPrompt,
		promptTemplate:    config.PromptTemplate,
		envTools:          envTools,
		finalTool:         config.FinalTool,
		maxSteps:          maxSteps,
		parallelToolCalls: config.ParallelToolCalls,
		registry:          registry,
		gateway:           gateway,
	}
}

func (a *Agent) Name() string { return a.name }

// Call runs one loop invocation. Exactly one of userInput and feedback must
// be set: fresh input starts a turn, feedback resumes a paused one. Output
// flows through emit; the returned error is only ever the terminal
// tool-call failure or a transport failure.
func (a *Agent) Call(ctx context.Context, store session.Store, userInput string, feedback []types.ToolCallToConfirm, emit Emit) error {
	if userInput != "" && len(feedback) > 0 {
		return fmt.Errorf("user input and confirmation feedback cannot both be set")
	}
	if userInput == "" && len(feedback) == 0 {
		return fmt.Errorf("user input and confirmation feedback cannot both be empty")
	}
	logger := logging.NewSessionLogger("agent", store.ID())

	envTag := a.envTag(ctx, store)
	names, ok := a.envTools[envTag]
	if !ok {
		names = a.envTools[tools.DefaultEnv]
	}
	active := a.resolveTools(names)
	executor := tools.NewExecutor(active)
	defs := tools.Definitions(active)

	logger.Debug("start loop: env=%s input=%q feedback=%d", envTag, userInput, len(feedback))

	if userInput != "" {
		if store.Len(ctx) == 0 && a.systemPrompt != "" {
			store.Append(ctx, types.NewSystemMessage(a.systemPrompt))
		}
		store.Append(ctx, types.NewHumanMessage(a.formatPrompt(ctx, store, userInput)))
		if _, err := a.gateway.Stream(ctx, store, defs, a.parallelToolCalls, func(fragment string) {
			emit(types.TextItem(fragment))
		}); err != nil {
			return err
		}
	}

	var lastAI *types.Message

	for step := 0; step < a.maxSteps; step++ {
		results, pending := executor.Execute(ctx, store, feedback, func(chunk string) {
			emit(types.TextItem(chunk))
		})

		logger.Debug("step %d: results=%d pending=%d", step, len(results), len(pending))

		if len(results) == 0 && len(pending) == 0 {
			// Cancellation paths may end a turn without a model answer.
			if lastAI != nil {
				logger.Info("task finished: %s", lastAI.Content)
				emit(types.FinalAnswerItem(lastAI.Content))
			}
			return nil
		}

		if len(pending) > 0 {
			emit(types.ConfirmRequestItem(pending))
			return nil
		}

		var finishResult *types.Message
		for _, result := range results {
			if result == nil {
				continue
			}
			if tools.ResultToolName(result) == a.finalTool {
				finishResult = result
			} else {
				emit(types.ToolMessageItem(*result))
			}
		}
		for _, result := range results {
			if result != nil {
				store.Append(ctx, *result)
			}
		}

		if finishResult != nil {
			var answer any
			if err := json.Unmarshal([]byte(finishResult.Content), &answer); err != nil {
				answer = finishResult.Content
			}
			logger.Info("task finished with answer")
			emit(types.FinalAnswerItem(answer))
			return nil
		}

		msg, err := a.gateway.Invoke(ctx, store, defs, a.parallelToolCalls)
		if err != nil {
			return err
		}
		lastAI = &msg
	}

	logger.Warn("loop ended after %d steps without a terminal signal", a.maxSteps)
	return nil
}

func (a *Agent) envTag(ctx context.Context, store session.Store) string {
	value, ok := store.Context(ctx, "env")
	if !ok {
		return tools.DefaultEnv
	}
	switch env := value.(type) {
	case string:
		if env != "" {
			return env
		}
	case map[string]any:
		if tag, ok := env["tag"].(string); ok && tag != "" {
			return tag
		}
	}
	return tools.DefaultEnv
}

func (a *Agent) resolveTools(names []string) []*tools.Tool {
	out := make([]*tools.Tool, 0, len(names))
	for _, name := range names {
		if tool, ok := a.registry.Get(name); ok {
			out = append(out, tool)
		}
	}
	return out
}

func (a *Agent) formatPrompt(ctx context.Context, store session.Store, userInput string) string {
	if a.promptTemplate == "" {
		return userInput
	}
	env := ""
	if value, ok := store.Context(ctx, "env"); ok {
		env = fmt.Sprintf("%v", value)
	}
	formatted := strings.ReplaceAll(a.promptTemplate, "{user_input}", userInput)
	return strings.ReplaceAll(formatted, "{env}", env)
}
