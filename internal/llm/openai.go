package llm

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kaptinlin/jsonrepair"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/pkoukk/tiktoken-go"

	"fable/internal/errors"
	"fable/internal/logging"
	"fable/internal/types"
)

// OpenAIClient talks to an OpenAI-compatible chat completion endpoint.
type OpenAIClient struct {
	client openai.Client
	model  string
	logger logging.Logger
	retry  errors.RetryConfig
}

// ClientConfig selects the endpoint and model.
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

func NewOpenAIClient(config ClientConfig) *OpenAIClient {
	var options []option.RequestOption
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}
	if config.APIKey != "" {
		options = append(options, option.WithAPIKey(config.APIKey))
	}
	return &OpenAIClient{
		client: openai.NewClient(options...),
		model:  config.Model,
		logger: logging.NewComponentLogger("llm"),
		retry:  errors.DefaultRetryConfig(),
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, req Request) (types.Message, error) {
	params := c.buildParams(req)
	completion, err := errors.RetryWithResult(ctx, c.retry, c.logger, func(ctx context.Context) (*openai.ChatCompletion, error) {
		return c.client.Chat.Completions.New(ctx, params)
	})
	if err != nil {
		return types.Message{}, err
	}
	if len(completion.Choices) == 0 {
		return types.NewAIMessage(""), nil
	}
	return c.toMessage(completion.Choices[0].Message), nil
}

func (c *OpenAIClient) StreamComplete(ctx context.Context, req Request, onText func(fragment string)) (types.Message, error) {
	params := c.buildParams(req)

	acc, err := errors.RetryWithResult(ctx, c.retry, c.logger, func(ctx context.Context) (openai.ChatCompletionAccumulator, error) {
		stream := c.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		emitted := false
		acc := openai.ChatCompletionAccumulator{}
		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)
			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				onText(chunk.Choices[0].Delta.Content)
				emitted = true
			}
		}
		if err := stream.Err(); err != nil {
			// A retry after partial output would duplicate what the
			// caller already received.
			if emitted {
				return acc, errors.NewPermanentError(err, "stream failed after partial output")
			}
			return acc, err
		}
		return acc, nil
	})
	if err != nil {
		return types.Message{}, err
	}
	if len(acc.Choices) == 0 {
		return types.NewAIMessage(""), nil
	}
	return c.toMessage(acc.Choices[0].Message), nil
}

func (c *OpenAIClient) buildParams(req Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{Model: c.model}

	promptTokens := 0
	for _, msg := range req.Messages {
		params.Messages = append(params.Messages, toParamMessage(msg))
		promptTokens += countTokens(msg.Content)
	}
	c.logger.Debug("completion request: %d messages, ~%d prompt tokens, %d tools",
		len(req.Messages), promptTokens, len(req.Tools))

	for _, def := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        def.Name,
					Description: openai.String(def.Description),
					Parameters:  openai.FunctionParameters(def.Parameters),
				},
			},
		})
	}
	if len(req.Tools) > 0 {
		params.ParallelToolCalls = openai.Bool(req.ParallelToolCalls)
	}
	return params
}

func toParamMessage(msg types.Message) openai.ChatCompletionMessageParamUnion {
	switch msg.Role {
	case types.RoleSystem:
		return openai.SystemMessage(msg.Content)
	case types.RoleHuman:
		return openai.UserMessage(msg.Content)
	case types.RoleTool:
		return openai.ToolMessage(msg.Content, msg.ToolCallID)
	default:
		param := openai.AssistantMessage(msg.Content)
		for _, call := range msg.ToolCalls {
			args, err := json.Marshal(call.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			param.OfAssistant.ToolCalls = append(param.OfAssistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
				OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
					ID: call.ID,
					Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      call.Name,
						Arguments: string(args),
					},
				},
			})
		}
		return param
	}
}

// toMessage converts the provider response, parsing tool-call arguments.
// Arguments that fail to parse go through a JSON repair pass first; calls
// that still do not parse are flagged invalid.
func (c *OpenAIClient) toMessage(msg openai.ChatCompletionMessage) types.Message {
	out := types.NewAIMessage(msg.Content)
	for _, call := range msg.ToolCalls {
		parsed := types.ToolCall{ID: call.ID, Name: call.Function.Name}
		args, ok := parseArguments(call.Function.Arguments)
		if !ok {
			c.logger.Error("unparseable arguments for tool call %s (%s): %q",
				call.ID, call.Function.Name, call.Function.Arguments)
			parsed.Arguments = map[string]any{"raw": call.Function.Arguments}
			out.InvalidToolCalls = append(out.InvalidToolCalls, parsed)
			continue
		}
		parsed.Arguments = args
		out.ToolCalls = append(out.ToolCalls, parsed)
	}
	return out
}

func parseArguments(raw string) (map[string]any, bool) {
	if raw == "" {
		return map[string]any{}, true
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		return args, true
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		return nil, false
	}
	return args, true
}

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// countTokens estimates tokens with the cl100k_base encoding, falling back
// to a rune heuristic when the encoding cannot be initialized.
func countTokens(text string) int {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	if encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}
	return len([]rune(text)) / 4
}
