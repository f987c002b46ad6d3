// Package research drives the end-to-end research request: reserve
// credits, gather evidence, synthesize, cite, commit.
package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/udaysk3/smart-research-assistant/internal/model"
	"github.com/udaysk3/smart-research-assistant/pkg/anthropic"
)

// Synthesizer is the external text generation capability: it turns a
// question plus an evidence set into narrative text with inline `[n]`
// source markers.
type Synthesizer interface {
	Synthesize(ctx context.Context, question string, evidence []model.EvidenceItem) (string, error)
}

// AnthropicSynthesizer implements Synthesizer with the Anthropic API.
type AnthropicSynthesizer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicSynthesizer creates a synthesizer using the given model.
func NewAnthropicSynthesizer(client anthropic.Client, modelID string, maxTokens int) *AnthropicSynthesizer {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &AnthropicSynthesizer{
		client:    client,
		model:     modelID,
		maxTokens: int64(maxTokens),
	}
}

const synthesisSystem = `You are a research assistant. Answer the user's question using only the numbered evidence provided. Cite evidence inline using [1], [2], etc. If evidence conflicts, mention the different perspectives. Structure the answer as: a short executive summary, key findings with citations, and detailed analysis. Aim for 200-500 words.`

func (s *AnthropicSynthesizer) Synthesize(ctx context.Context, question string, evidence []model.EvidenceItem) (string, error) {
	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		System:    synthesisSystem,
		Messages: []anthropic.Message{
			{Role: "user", Content: BuildPrompt(question, evidence)},
		},
	})
	if err != nil {
		return "", eris.Wrap(model.ErrSynthesisFailure, err.Error())
	}
	if resp.Text == "" {
		return "", eris.Wrap(model.ErrSynthesisFailure, "empty completion")
	}
	return resp.Text, nil
}

// BuildPrompt renders the question and evidence set for the synthesis
// model. Evidence is numbered in rank order, matching the citation indices
// the assembler will assign, so the model's `[n]` markers line up with the
// final citation list.
func BuildPrompt(question string, evidence []model.EvidenceItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "QUESTION: %s\n\n", question)

	if len(evidence) == 0 {
		b.WriteString("No evidence was retrieved. Answer from general knowledge and say so explicitly.\n")
		return b.String()
	}

	b.WriteString("EVIDENCE:\n\n")
	for i, item := range evidence {
		fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, item.SourceKind.Label(), item.Title)
		fmt.Fprintf(&b, "    %s\n", item.Snippet)
		if item.Location != "" {
			fmt.Fprintf(&b, "    Source: %s\n", item.Location)
		}
		b.WriteString("\n")
	}
	b.WriteString("Answer the question using this evidence, citing with the bracketed numbers above.\n")
	return b.String()
}
