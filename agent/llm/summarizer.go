package llm

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/waritk/frontdesk/agent/contract"
)

const summarySystemPrompt = `You summarize completed phone calls for a service desk.
Given the transcript, produce a JSON object with a single field "summary":
two or three sentences covering who called, what they wanted, and what was
agreed or booked. Mention concrete dates, times, and resource names when they
appear. Output only the JSON object.`

type summaryLLMOutput struct {
	Summary string `json:"summary"`
}

// Summarizer produces the end-of-call summary that is persisted to caller
// memory. Safe for concurrent use.
type Summarizer struct {
	runner compose.Runnable[map[string]any, summaryLLMOutput]
}

var _ contractx.Summarizer = (*Summarizer)(nil)

func NewSummarizer(ctx context.Context, chatModel einomodel.BaseChatModel) (*Summarizer, error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(summarySystemPrompt),
		schema.UserMessage("{input}"),
	)

	parser := schema.NewMessageJSONParser[summaryLLMOutput](&schema.MessageJSONParseConfig{
		ParseFrom: schema.MessageParseFromContent,
	})

	graph := compose.NewGraph[map[string]any, summaryLLMOutput]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add summary prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add summary model node: %w", err)
	}
	if err := graph.AddLambdaNode("parse_json", compose.MessageParser(parser)); err != nil {
		return nil, fmt.Errorf("add summary parser node: %w", err)
	}
	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add summary edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add summary edge prompt->model: %w", err)
	}
	if err := graph.AddEdge("model", "parse_json"); err != nil {
		return nil, fmt.Errorf("add summary edge model->parse: %w", err)
	}
	if err := graph.AddEdge("parse_json", compose.END); err != nil {
		return nil, fmt.Errorf("add summary edge parse->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("session.summary_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile summary graph: %w", err)
	}

	return &Summarizer{runner: runner}, nil
}

func (s *Summarizer) Summarize(ctx context.Context, transcript []string) (string, error) {
	if len(transcript) == 0 {
		return "", fmt.Errorf("%w: transcript is empty", contractx.ErrValidation)
	}

	out, err := s.runner.Invoke(ctx, map[string]any{
		"input": strings.Join(transcript, "\n"),
	})
	if err != nil {
		return "", fmt.Errorf("%w: summary invoke: %v", contractx.ErrModelInvoke, err)
	}

	summary := strings.TrimSpace(out.Summary)
	if summary == "" {
		return "", fmt.Errorf("%w: summary is empty", contractx.ErrModelInvoke)
	}
	return summary, nil
}
