package classifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/tullo/guardian/internal/moderation"
)

const defaultVisionURL = "https://vision.googleapis.com"

type visionFeature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults,omitempty"`
}

type visionRequest struct {
	Requests []struct {
		Image struct {
			Source struct {
				ImageURI string `json:"imageUri"`
			} `json:"source"`
		} `json:"image"`
		Features []visionFeature `json:"features"`
	} `json:"requests"`
}

type visionResponse struct {
	Responses []struct {
		SafeSearchAnnotation *struct {
			Adult    string `json:"adult"`
			Spoof    string `json:"spoof"`
			Medical  string `json:"medical"`
			Violence string `json:"violence"`
			Racy     string `json:"racy"`
		} `json:"safeSearchAnnotation"`
		LocalizedObjectAnnotations []struct {
			Name  string  `json:"name"`
			Score float64 `json:"score"`
		} `json:"localizedObjectAnnotations"`
		FullTextAnnotation *struct {
			Text string `json:"text"`
		} `json:"fullTextAnnotation"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

// Vision adapts an image safe-search, object localization and OCR service.
type Vision struct {
	client   *jsonClient
	baseURL  string
	apiKey   string
	minScore float64
}

func NewVision(baseURL, apiKey string, httpClient *http.Client, log *zap.Logger) *Vision {
	if baseURL == "" {
		baseURL = defaultVisionURL
	}
	return &Vision{
		client:   newJSONClient("vision", httpClient, log),
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		minScore: 0.5,
	}
}

func (v *Vision) Annotate(ctx context.Context, imageURL string) (moderation.ImageAnnotation, error) {
	var req visionRequest
	req.Requests = make([]struct {
		Image struct {
			Source struct {
				ImageURI string `json:"imageUri"`
			} `json:"source"`
		} `json:"image"`
		Features []visionFeature `json:"features"`
	}, 1)
	req.Requests[0].Image.Source.ImageURI = imageURL
	req.Requests[0].Features = []visionFeature{
		{Type: "SAFE_SEARCH_DETECTION"},
		{Type: "OBJECT_LOCALIZATION", MaxResults: 20},
		{Type: "TEXT_DETECTION"},
	}

	endpoint := v.baseURL + "/v1/images:annotate?key=" + url.QueryEscape(v.apiKey)
	var resp visionResponse
	if err := v.client.postJSON(ctx, endpoint, nil, req, &resp); err != nil {
		return moderation.ImageAnnotation{}, err
	}
	if len(resp.Responses) == 0 {
		return moderation.ImageAnnotation{}, errors.New("vision: empty responses")
	}

	r := resp.Responses[0]
	if r.Error != nil {
		return moderation.ImageAnnotation{}, fmt.Errorf("vision: %d %s", r.Error.Code, r.Error.Message)
	}
	if r.SafeSearchAnnotation == nil {
		return moderation.ImageAnnotation{}, errors.New("vision: missing safe search annotation")
	}

	ann := moderation.ImageAnnotation{
		SafeSearch: map[string]moderation.Likelihood{
			"adult":    moderation.Likelihood(r.SafeSearchAnnotation.Adult),
			"spoof":    moderation.Likelihood(r.SafeSearchAnnotation.Spoof),
			"medical":  moderation.Likelihood(r.SafeSearchAnnotation.Medical),
			"violence": moderation.Likelihood(r.SafeSearchAnnotation.Violence),
			"racy":     moderation.Likelihood(r.SafeSearchAnnotation.Racy),
		},
	}
	for _, obj := range r.LocalizedObjectAnnotations {
		if obj.Score >= v.minScore {
			ann.Objects = append(ann.Objects, obj.Name)
		}
	}
	if r.FullTextAnnotation != nil {
		ann.Text = r.FullTextAnnotation.Text
	}
	return ann, nil
}
