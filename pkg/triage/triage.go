package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/noperator/remnant/pkg/detect"
	"github.com/noperator/remnant/pkg/extract"
	"github.com/noperator/remnant/pkg/logging"
	"github.com/noperator/remnant/pkg/pool"
)

// Config holds the LLM connection settings for triage.
type Config struct {
	APIKey      string
	BaseURL     string // for OpenAI-compatible APIs
	Model       string
	MaxTokens   int
	Concurrency int
}

// ConfigFromEnv assembles a Config from the environment. The API key is the
// only required setting.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		APIKey:      os.Getenv("REMNANT_OPENAI_API_KEY"),
		BaseURL:     os.Getenv("REMNANT_OPENAI_BASE_URL"),
		Model:       os.Getenv("REMNANT_LLM_MODEL"),
		MaxTokens:   2048,
		Concurrency: 4,
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return cfg, fmt.Errorf("no API key set (REMNANT_OPENAI_API_KEY or OPENAI_API_KEY)")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if v := os.Getenv("REMNANT_LLM_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid REMNANT_LLM_CONCURRENCY %q", v)
		}
		cfg.Concurrency = n
	}
	return cfg, nil
}

// Verdict is the model's structured assessment of one match.
type Verdict struct {
	Vulnerable bool    `json:"vulnerable"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// TriagedMatch pairs a scan match with its triage verdict. Error is set
// when the review itself failed; the match is kept either way.
type TriagedMatch struct {
	detect.Match
	Verdict *Verdict `json:"verdict,omitempty"`
	Error   string   `json:"triage_error,omitempty"`
}

var verdictSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"vulnerable": map[string]interface{}{
			"type":        "boolean",
			"description": "Whether the flagged function still contains the vulnerable logic",
		},
		"confidence": map[string]interface{}{
			"type":        "number",
			"description": "Confidence in the verdict between 0 and 1",
		},
		"reason": map[string]interface{}{
			"type":        "string",
			"description": "One-paragraph justification citing specific lines",
		},
	},
	"required":             []string{"vulnerable", "confidence", "reason"},
	"additionalProperties": false,
}

// Analyzer reviews scan matches with an LLM and returns structured
// verdicts.
type Analyzer struct {
	client openai.Client
	config Config
	logger *slog.Logger
}

func NewAnalyzer(config Config) *Analyzer {
	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}
	if config.BaseURL != "" {
		baseURL := config.BaseURL
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &Analyzer{
		client: openai.NewClient(opts...),
		config: config,
		logger: logging.NewLoggerFromEnv(),
	}
}

// Review asks the model whether one flagged function is actually
// vulnerable.
func (a *Analyzer) Review(ctx context.Context, match detect.Match, rec *extract.FunctionRecord) (*Verdict, error) {
	prompt := buildPrompt(match, rec)

	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You are a security engineer reviewing clone-detection findings. Judge only from the code given; respond in the exact structured format."),
			openai.UserMessage(prompt),
		},
		Model:     openai.ChatModel(a.config.Model),
		MaxTokens: openai.Int(int64(a.config.MaxTokens)),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "triage_verdict",
					Description: openai.String("Verdict on one clone-detection finding"),
					Schema:      verdictSchema,
					Strict:      openai.Bool(true),
				},
			},
		},
	}

	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned from LLM")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return nil, fmt.Errorf("LLM returned empty content, finish reason: %v", resp.Choices[0].FinishReason)
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(content), &verdict); err != nil {
		return nil, fmt.Errorf("failed to parse verdict: %w", err)
	}

	a.logger.Debug("triage verdict",
		"component", "triage",
		"idx", match.VulnIndex,
		"function", match.Function,
		"vulnerable", verdict.Vulnerable,
		"confidence", verdict.Confidence,
		"tokens", resp.Usage.TotalTokens)
	return &verdict, nil
}

// TriageAll reviews every match concurrently. Individual review failures
// are recorded on the match instead of aborting the batch.
func (a *Analyzer) TriageAll(ctx context.Context, matches []detect.Match, funcs map[string]*extract.FunctionRecord) ([]TriagedMatch, error) {
	wp := pool.NewWorkerPool[detect.Match, TriagedMatch](a.config.Concurrency)
	return wp.ProcessItems(ctx, matches,
		pool.ProcessFunc[detect.Match, TriagedMatch](func(ctx context.Context, match detect.Match) (TriagedMatch, error) {
			triaged := TriagedMatch{Match: match}
			rec := findRecord(funcs, match)
			if rec == nil {
				triaged.Error = "extracted function not found"
				return triaged, nil
			}
			verdict, err := a.Review(ctx, match, rec)
			if err != nil {
				triaged.Error = err.Error()
				return triaged, nil
			}
			triaged.Verdict = verdict
			return triaged, nil
		}), "triage")
}

func findRecord(funcs map[string]*extract.FunctionRecord, match detect.Match) *extract.FunctionRecord {
	key := extract.FunctionKey{
		Name: match.Function,
		Path: strings.Split(match.Path, "/"),
	}
	return funcs[key.String()]
}

func buildPrompt(match detect.Match, rec *extract.FunctionRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A clone-detection scan flagged the function %q in %s as a likely clone of the vulnerable function from %s (similarity %.2f against the %s body).\n\n",
		match.Function, match.Path, match.Label, match.Similarity, match.Basis)
	if len(match.Callers) > 0 {
		fmt.Fprintf(&b, "It is called by: %s.\n\n", strings.Join(match.Callers, ", "))
	}
	b.WriteString("Function source:\n\n```\n")
	b.WriteString(strings.Join(rec.Raw, "\n"))
	b.WriteString("\n```\n\nDecide whether the vulnerable logic is present in this function as written.")
	return b.String()
}
