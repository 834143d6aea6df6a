package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	log "log/slog"
	"strings"

	openai "github.com/openai/openai-go/v3"

	"aimar/internal/dialog"
)

const symptomPrompt = `
You are AIMAR-NLU, the symptom classifier of a hospital assistant robot.
Your ONLY job is to map the patient's utterance to one symptom of the list below.

RULES:
1. Do NOT converse.
2. Do NOT give medical advice.
3. Output ONLY JSON. No markdown.
4. Never invent symptoms that are not on the list.

OUTPUT FORMAT:
{"symptom": "<exact name from the list or none>"}

SYMPTOMS:
%s
`

const factorPrompt = `
You are AIMAR-NLU. The patient answered a follow-up question about a symptom.
Reduce the answer to ONE short lower-case factor describing it.
Prefer one of the offered options when the answer means the same thing.
If the answer describes something else, summarise it in at most four words.

RULES:
1. Output ONLY JSON. No markdown.
2. Never add facts the patient did not say.

OUTPUT FORMAT:
{"factor": "<string>"}

OPTIONS:
%s
`

// OpenAI asks a chat model to do the matching. Blank input never reaches the
// model.
type OpenAI struct {
	client openai.Client
	model  openai.ChatModel
}

func NewOpenAI(client openai.Client, model string) *OpenAI {
	return &OpenAI{client: client, model: openai.ChatModel(model)}
}

type symptomResult struct {
	Symptom string `json:"symptom"`
}

type factorResult struct {
	Factor string `json:"factor"`
}

func (o *OpenAI) ExtractSymptom(ctx context.Context, text string, tree *dialog.Tree) (*dialog.Symptom, error) {
	if strings.TrimSpace(text) == "" || tree == nil {
		return nil, nil
	}

	system := fmt.Sprintf(symptomPrompt, bulletList(tree.Names()))

	var out symptomResult
	if err := o.analyze(ctx, system, text, &out); err != nil {
		return nil, err
	}

	if strings.EqualFold(out.Symptom, "none") || out.Symptom == "" {
		return nil, nil
	}
	s := tree.Lookup(out.Symptom)
	if s == nil {
		log.Warn("Model picked a symptom outside the tree", "symptom", out.Symptom)
	}
	return s, nil
}

func (o *OpenAI) ExtractFactor(ctx context.Context, answer string, candidates []string) (string, error) {
	if strings.TrimSpace(answer) == "" {
		return "", nil
	}

	system := fmt.Sprintf(factorPrompt, bulletList(candidates))

	var out factorResult
	if err := o.analyze(ctx, system, answer, &out); err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(out.Factor)), nil
}

func (o *OpenAI) analyze(ctx context.Context, system, utterance string, out any) error {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(utterance),
		},
		Model: o.model,
	})
	if err != nil {
		return fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return fmt.Errorf("no choices in response")
	}

	content := stripFences(resp.Choices[0].Message.Content)
	if content == "" {
		return fmt.Errorf("empty message content")
	}

	log.Debug("Processed", "data", content)

	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("unmarshal NLU result: %w (raw: %s)", err, content)
	}
	return nil
}

// Models occasionally wrap JSON in markdown fences despite the prompt.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func bulletList(items []string) string {
	var b strings.Builder
	for _, it := range items {
		b.WriteString("- ")
		b.WriteString(it)
		b.WriteString("\n")
	}
	return b.String()
}
