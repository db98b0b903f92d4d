package classifier

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/tullo/guardian/internal/moderation"
)

const (
	defaultPerspectiveURL = "https://commentanalyzer.googleapis.com"
	perspectiveThreshold  = 0.7
)

var perspectiveAttributes = map[string]string{
	"TOXICITY":          "toxicity",
	"SEVERE_TOXICITY":   "severe_toxicity",
	"IDENTITY_ATTACK":   "bullying",
	"INSULT":            "bullying",
	"PROFANITY":         "explicit_language",
	"THREAT":            "violence_threats",
	"SEXUALLY_EXPLICIT": "inappropriate_content",
}

type perspectiveRequest struct {
	Comment struct {
		Text string `json:"text"`
	} `json:"comment"`
	Languages           []string            `json:"languages"`
	RequestedAttributes map[string]struct{} `json:"requestedAttributes"`
	DoNotStore          bool                `json:"doNotStore"`
}

type perspectiveResponse struct {
	AttributeScores map[string]struct {
		SummaryScore struct {
			Value float64 `json:"value"`
		} `json:"summaryScore"`
	} `json:"attributeScores"`
}

// Perspective adapts the toxicity-attribute scoring API.
type Perspective struct {
	client     *jsonClient
	baseURL    string
	apiKey     string
	threshold  float64
	confidence float64
}

func NewPerspective(baseURL, apiKey string, httpClient *http.Client, log *zap.Logger) *Perspective {
	if baseURL == "" {
		baseURL = defaultPerspectiveURL
	}
	return &Perspective{
		client:     newJSONClient("perspective", httpClient, log),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		threshold:  perspectiveThreshold,
		confidence: 0.85,
	}
}

func (p *Perspective) Name() string { return "perspective" }

func (p *Perspective) Classify(ctx context.Context, text string) (moderation.Signal, error) {
	req := perspectiveRequest{
		Languages:           []string{"en"},
		RequestedAttributes: make(map[string]struct{}, len(perspectiveAttributes)),
		DoNotStore:          true,
	}
	req.Comment.Text = text
	for attr := range perspectiveAttributes {
		req.RequestedAttributes[attr] = struct{}{}
	}

	endpoint := p.baseURL + "/v1alpha1/comments:analyze?key=" + url.QueryEscape(p.apiKey)
	var resp perspectiveResponse
	if err := p.client.postJSON(ctx, endpoint, nil, req, &resp); err != nil {
		return moderation.Signal{}, err
	}
	if len(resp.AttributeScores) == 0 {
		return moderation.Signal{}, errors.New("perspective: no attribute scores")
	}

	var sig moderation.Signal
	for attr, s := range resp.AttributeScores {
		name, ok := perspectiveAttributes[attr]
		if !ok {
			continue
		}
		v := s.SummaryScore.Value
		if v > sig.Score {
			sig.Score = v
		}
		if v >= p.threshold {
			sig.Flags = append(sig.Flags, name)
		}
	}
	sig.Score *= scoreScale
	sig.Confidence = p.confidence
	return sig, nil
}
