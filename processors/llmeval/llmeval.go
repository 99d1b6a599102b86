// Package llmeval provides an LLM-as-judge ProcessorContract node: it scores
// a transcript/highlight summary against a rubric using an OpenAI-compatible
// chat completion model.
//
// Message construction follows the teacher's
// core/model/openai/openai.go convertMessages: explicit
// openai.ChatCompletionMessageParamUnion{OfSystem: ..., OfUser: ...} values
// rather than any convenience helper, since only that verbose form is
// confirmed present in the teacher's working code.
package llmeval

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/hirak99/video-summarizer/flow"
	"github.com/hirak99/video-summarizer/log"
)

// Verdict is the value returned by Process.
type Verdict struct {
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
	Model     string  `json:"model"`
}

// scoreLineRE matches the "Score: <number>" line the system prompt asks the
// judge to end its response with.
var scoreLineRE = regexp.MustCompile(`(?i)score\s*[:=]\s*(-?[0-9]+(?:\.[0-9]+)?)`)

// parseScore extracts the judge's numeric verdict from its free-form
// rationale. Returns 0 if no "Score: <number>" line is found.
func parseScore(rationale string) float64 {
	match := scoreLineRE.FindStringSubmatch(rationale)
	if match == nil {
		return 0
	}
	score, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0
	}
	return score
}

const scoringInstruction = "\n\nEnd your response with a line of the exact form \"Score: <number 0-10>\"."

// Options configures the judge's underlying client and model.
type Options struct {
	APIKey  string
	BaseURL string // optional, for OpenAI-compatible endpoints
	Model   string
}

type processor struct {
	flow.BaseProcessor
	client openai.Client
	model  string
}

// NewFactory returns a flow.ProcessorFactory for a judge node requiring
// "rubric" and "transcript" string inputs.
func NewFactory(opts Options) flow.ProcessorFactory {
	return func() flow.Processor {
		var clientOpts []option.RequestOption
		if opts.APIKey != "" {
			clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
		}
		if opts.BaseURL != "" {
			clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
		}
		model := opts.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		return &processor{
			BaseProcessor: flow.BaseProcessor{
				ProcessorName: "LLMEval",
				Sig: flow.Signature{
					{Name: "rubric", Type: flow.StringType(), Required: true},
					{Name: "transcript", Type: flow.StringType(), Required: true},
				},
			},
			client: openai.NewClient(clientOpts...),
			model:  model,
		}
	}
}

func (p *processor) Process(args map[string]any) (any, error) {
	rubric := args["rubric"].(string)
	transcript := args["transcript"].(string)

	chatRequest := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(rubric + scoringInstruction),
					},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(transcript),
					},
				},
			},
		},
	}

	completion, err := p.client.Chat.Completions.New(context.Background(), chatRequest)
	if err != nil {
		return nil, fmt.Errorf("llm eval request: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("llm eval returned no choices")
	}

	rationale := completion.Choices[0].Message.Content
	log.Infof("LLM eval rationale: %s", rationale)
	return Verdict{
		Score:     parseScore(rationale),
		Rationale: rationale,
		Model:     p.model,
	}, nil
}
