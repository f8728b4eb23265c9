package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/gocollect/internal/llm"
	"github.com/hyperifyio/gocollect/internal/retry"
	"github.com/hyperifyio/gocollect/internal/taxonomy"
)

// LLMMatcher presents the title and the candidate name list to a chat
// model and parses the chosen name back into a node. Confidence is binary:
// the model either asserts a candidate or abstains via the fallback name,
// there is no numeric score.
type LLMMatcher struct {
	Chat  llm.Client
	Model string
	// AbstainName is the name the model is told to answer with when no
	// candidate fits.
	AbstainName string
	Retry       retry.Policy
}

const llmMatchPrompt = `You are a filing assistant. Pick the single best-matching
directory for the article title from the list below. Use your knowledge to
interpret product names and technical terms in the title. If no directory
truly fits, answer with %q. Respond with exactly this JSON and nothing else:
{"directory": "<name>", "confidence": "high|medium|low", "reason": "<short>"}

Article title: %s

Directories:
%s`

type llmChoice struct {
	Directory  string `json:"directory"`
	Confidence string `json:"confidence"`
	Reason     string `json:"reason"`
}

func (m *LLMMatcher) Match(ctx context.Context, title string, candidates []taxonomy.Node) (Result, error) {
	byName := make(map[string]taxonomy.Node, len(candidates))
	var names strings.Builder
	for _, c := range candidates {
		byName[c.Name] = c
		names.WriteString("- " + c.Name + "\n")
	}
	prompt := fmt.Sprintf(llmMatchPrompt, m.AbstainName, title, names.String())

	resp, err := retry.Do(ctx, m.Retry, "llm classify", func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		resp, err := m.Chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       m.Model,
			Messages:    []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
			Temperature: 0,
		})
		if err != nil && llm.IsQuotaError(err) {
			return resp, retry.Permanent(fmt.Errorf("%w: %v", ErrQuotaExceeded, err))
		}
		return resp, err
	})
	if err != nil {
		return Result{}, err
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("empty model response")
	}

	choice, err := parseChoice(resp.Choices[0].Message.Content)
	if err != nil {
		return Result{}, err
	}
	node, ok := byName[choice.Directory]
	if !ok {
		// Abstained, or invented a name not on the list. Either way there
		// is no match.
		return Result{Confidence: 0, Matched: false, Band: BandLow}, nil
	}
	return Result{Target: node, Confidence: 1, Matched: true, Band: BandHigh}, nil
}

// parseChoice tolerates markdown code fences around the JSON payload.
func parseChoice(content string) (llmChoice, error) {
	s := strings.TrimSpace(content)
	if i := strings.IndexByte(s, '{'); i >= 0 {
		if j := strings.LastIndexByte(s, '}'); j > i {
			s = s[i : j+1]
		}
	}
	var c llmChoice
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return llmChoice{}, fmt.Errorf("unparseable classification response: %w", err)
	}
	if strings.TrimSpace(c.Directory) == "" {
		return llmChoice{}, fmt.Errorf("classification response missing directory")
	}
	return c, nil
}
