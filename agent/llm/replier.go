package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/waritk/frontdesk/agent/contract"
)

// Replier drives the conversational model for one call. It keeps the running
// message history internally, so it is scoped to a single session and must not
// be shared between calls.
type Replier struct {
	runner  compose.Runnable[map[string]any, *schema.Message]
	history []*schema.Message
}

var _ contractx.Replier = (*Replier)(nil)

// NewReplier compiles the conversational graph with the given instructions and
// tool bindings. Instructions already carry the variant prompt, voice rules,
// and any returning-caller context.
func NewReplier(
	ctx context.Context,
	chatModel einomodel.ToolCallingChatModel,
	instructions string,
	tools []*schema.ToolInfo,
) (*Replier, error) {
	if strings.TrimSpace(instructions) == "" {
		return nil, fmt.Errorf("%w: replier instructions are empty", contractx.ErrConfiguration)
	}

	boundModel := einomodel.ToolCallingChatModel(chatModel)
	if len(tools) > 0 {
		withTools, err := chatModel.WithTools(tools)
		if err != nil {
			return nil, fmt.Errorf("%w: bind tools: %v", contractx.ErrModelInvoke, err)
		}
		boundModel = withTools
	}

	runner, err := compileReplyGraph(ctx, boundModel, instructions)
	if err != nil {
		return nil, err
	}

	return &Replier{runner: runner}, nil
}

func compileReplyGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	instructions string,
) (compose.Runnable[map[string]any, *schema.Message], error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(instructions),
		schema.MessagesPlaceholder("history", true),
	)

	graph := compose.NewGraph[map[string]any, *schema.Message]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add reply prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add reply model node: %w", err)
	}
	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add reply edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add reply edge prompt->model: %w", err)
	}
	if err := graph.AddEdge("model", compose.END); err != nil {
		return nil, fmt.Errorf("add reply edge model->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("session.reply_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile reply graph: %w", err)
	}
	return runner, nil
}

func (r *Replier) Reply(ctx context.Context, userText string) (contractx.Reply, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return contractx.Reply{}, fmt.Errorf("%w: user text is empty", contractx.ErrValidation)
	}

	r.history = append(r.history, schema.UserMessage(userText))
	return r.invoke(ctx)
}

func (r *Replier) ResolveTools(ctx context.Context, results []contractx.ToolResult) (contractx.Reply, error) {
	if len(results) == 0 {
		return contractx.Reply{}, fmt.Errorf("%w: no tool results to resolve", contractx.ErrValidation)
	}

	for _, res := range results {
		content := res.Result
		if res.Error != "" {
			content = fmt.Sprintf("error: %s", res.Error)
		}
		r.history = append(r.history, schema.ToolMessage(content, res.ID, schema.WithToolName(res.Name)))
	}

	return r.invoke(ctx)
}

func (r *Replier) invoke(ctx context.Context) (contractx.Reply, error) {
	msg, err := r.runner.Invoke(ctx, map[string]any{
		"history": r.history,
	})
	if err != nil {
		return contractx.Reply{}, fmt.Errorf("%w: reply invoke: %v", contractx.ErrModelInvoke, err)
	}
	if msg == nil {
		return contractx.Reply{}, fmt.Errorf("%w: empty model response", contractx.ErrModelInvoke)
	}

	r.history = append(r.history, msg)

	toolCalls, err := toToolRequests(msg.ToolCalls)
	if err != nil {
		return contractx.Reply{}, err
	}

	return contractx.Reply{
		Text:      strings.TrimSpace(msg.Content),
		ToolCalls: toolCalls,
	}, nil
}

func toToolRequests(calls []schema.ToolCall) ([]contractx.ToolRequest, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	reqs := make([]contractx.ToolRequest, 0, len(calls))
	for _, call := range calls {
		name := strings.TrimSpace(call.Function.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: tool call name is empty", contractx.ErrModelInvoke)
		}

		args := map[string]any{}
		rawArgs := strings.TrimSpace(call.Function.Arguments)
		if rawArgs != "" {
			if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
				return nil, fmt.Errorf("%w: invalid tool args for tool=%s: %v", contractx.ErrModelInvoke, name, err)
			}
		}

		reqs = append(reqs, contractx.ToolRequest{
			ID:   call.ID,
			Name: name,
			Args: args,
		})
	}
	return reqs, nil
}
