// Package extract turns downloaded papers into dataset records: it pulls
// theorem environments out of the LaTeX source and keeps the ones an LLM
// judges to have a single, definitive answer.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"mathmine/internal/perception"
)

// DefaultReasks is how many times the model is asked again when a reply
// lacks one of the verdict keys.
const DefaultReasks = 5

const judgeSystemPrompt = `You are an expert research mathematician reviewing theorems extracted from papers.
A theorem qualifies only if its statement determines a single, definitive answer: a specific value,
object, or closed-form result that can be checked. Statements that are existential, open-ended,
parametrised without a fixed conclusion, or that depend on undefined notation do not qualify.
Reply with a JSON object only.`

const judgePromptTemplate = `Please evaluate this mathematical theorem and determine if it has a single, definitive answer:

%s

Please explain if it has a single, definitive answer. Be very strict about the theorem: if there is any ambiguity, deem it non-unique.
Return in this exact JSON format:
{
    "single_unique_answer": "true" if the theorem has a single, definitive answer, otherwise "false",
    "explanation": "explanation of why this theorem has a single, definitive answer, otherwise an empty string"
}`

// Verdict is the model's judgement of one theorem.
type Verdict struct {
	Unique      bool   `json:"single_unique_answer"`
	Explanation string `json:"explanation"`
}

// Judge asks an LLM whether theorems have a unique answer.
type Judge struct {
	client perception.LLMClient
	logger *zap.Logger
	reasks int
}

// NewJudge creates a judge on client.
func NewJudge(client perception.LLMClient, logger *zap.Logger) *Judge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Judge{client: client, logger: logger, reasks: DefaultReasks}
}

// Evaluate judges one theorem. Every failure (transport, malformed JSON,
// missing keys after all re-asks) yields a negative verdict.
func (j *Judge) Evaluate(ctx context.Context, theorem string) Verdict {
	userPrompt := fmt.Sprintf(judgePromptTemplate, theorem)

	for attempt := 0; attempt <= j.reasks; attempt++ {
		reply, err := j.client.Complete(ctx, judgeSystemPrompt, userPrompt)
		if err != nil {
			j.logger.Warn("uniqueness check failed", zap.Error(err))
			return Verdict{}
		}

		verdict, complete, err := parseVerdict(reply)
		if err != nil {
			j.logger.Warn("uniqueness reply is not JSON", zap.Error(err), zap.String("reply", truncate(reply, 200)))
			return Verdict{}
		}
		if complete {
			return verdict
		}
		j.logger.Debug("uniqueness reply missing keys", zap.Int("attempt", attempt+1))
	}

	j.logger.Warn("model never returned a complete verdict", zap.Int("attempts", j.reasks+1))
	return Verdict{}
}

// parseVerdict decodes a reply. complete reports whether both keys were
// present. The answer may be the string "true" or a JSON boolean.
func parseVerdict(reply string) (Verdict, bool, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stripFence(reply)), &fields); err != nil {
		return Verdict{}, false, err
	}

	rawAnswer, okAnswer := fields["single_unique_answer"]
	rawExplanation, okExplanation := fields["explanation"]
	if !okAnswer || !okExplanation {
		return Verdict{}, false, nil
	}

	var v Verdict
	var answer any
	if err := json.Unmarshal(rawAnswer, &answer); err == nil {
		switch a := answer.(type) {
		case bool:
			v.Unique = a
		case string:
			v.Unique = strings.EqualFold(strings.TrimSpace(a), "true")
		}
	}
	if err := json.Unmarshal(rawExplanation, &v.Explanation); err != nil {
		v.Explanation = string(rawExplanation)
	}
	return v, true, nil
}

// stripFence removes a ```json fence some models wrap replies in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
