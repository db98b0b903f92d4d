package classifier

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/tullo/guardian/internal/moderation"
)

const (
	defaultOpenAIURL = "https://api.openai.com"
	// scoreScale maps a [0,1] provider score onto risk points.
	scoreScale = 50.0
)

// openAICategories maps provider categories onto flag names. Unlisted
// categories are ignored.
var openAICategories = map[string]string{
	"hate":                   "hate_speech",
	"hate/threatening":       "violence_threats",
	"harassment":             "bullying",
	"harassment/threatening": "violence_threats",
	"self-harm":              "self_harm",
	"self-harm/intent":       "self_harm",
	"self-harm/instructions": "self_harm",
	"sexual":                 "inappropriate_content",
	"sexual/minors":          "stranger_danger",
	"violence":               "violence_threats",
	"violence/graphic":       "violence_threats",
}

type openAIRequest struct {
	Input string `json:"input"`
	Model string `json:"model,omitempty"`
}

type openAIResponse struct {
	Results []struct {
		Flagged        bool               `json:"flagged"`
		Categories     map[string]bool    `json:"categories"`
		CategoryScores map[string]float64 `json:"category_scores"`
	} `json:"results"`
}

// OpenAI adapts the OpenAI moderation endpoint.
type OpenAI struct {
	client     *jsonClient
	baseURL    string
	apiKey     string
	model      string
	confidence float64
}

func NewOpenAI(baseURL, apiKey, model string, httpClient *http.Client, log *zap.Logger) *OpenAI {
	if baseURL == "" {
		baseURL = defaultOpenAIURL
	}
	return &OpenAI{
		client:     newJSONClient("openai", httpClient, log),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		confidence: 0.9,
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Classify(ctx context.Context, text string) (moderation.Signal, error) {
	var resp openAIResponse
	headers := map[string]string{"Authorization": "Bearer " + o.apiKey}
	if err := o.client.postJSON(ctx, o.baseURL+"/v1/moderations", headers, openAIRequest{Input: text, Model: o.model}, &resp); err != nil {
		return moderation.Signal{}, err
	}
	if len(resp.Results) == 0 {
		return moderation.Signal{}, errors.New("openai: empty results")
	}

	r := resp.Results[0]
	var sig moderation.Signal
	for category, score := range r.CategoryScores {
		if _, known := openAICategories[category]; known && score > sig.Score {
			sig.Score = score
		}
	}
	sig.Score *= scoreScale
	for category, flagged := range r.Categories {
		if name, ok := openAICategories[category]; ok && flagged {
			sig.Flags = append(sig.Flags, name)
		}
	}
	sig.Confidence = o.confidence
	return sig, nil
}
