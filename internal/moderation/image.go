package moderation

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tullo/guardian/internal/metrics"
	"github.com/tullo/guardian/internal/models"
)

// Likelihood is a SafeSearch-style five-level bucket.
type Likelihood string

const (
	LikelihoodUnknown      Likelihood = "UNKNOWN"
	LikelihoodVeryUnlikely Likelihood = "VERY_UNLIKELY"
	LikelihoodUnlikely     Likelihood = "UNLIKELY"
	LikelihoodPossible     Likelihood = "POSSIBLE"
	LikelihoodLikely       Likelihood = "LIKELY"
	LikelihoodVeryLikely   Likelihood = "VERY_LIKELY"
)

var likelihoodPoints = map[Likelihood]int{
	LikelihoodUnknown:      0,
	LikelihoodVeryUnlikely: 0,
	LikelihoodUnlikely:     1,
	LikelihoodPossible:     3,
	LikelihoodLikely:       6,
	LikelihoodVeryLikely:   10,
}

// Points returns the score contribution of the bucket before the category factor.
func (l Likelihood) Points() int {
	return likelihoodPoints[l]
}

// safeSearchFactors weights each SafeSearch category; spoof never scores.
var safeSearchFactors = []struct {
	name   string
	factor int
}{
	{"adult", 3},
	{"violence", 3},
	{"racy", 2},
	{"medical", 1},
	{"spoof", 0},
}

var concerningObjects = []string{"weapon", "gun", "knife", "drug", "pill", "syringe", "alcohol", "beer", "wine", "cigarette"}

var suspiciousExtensions = map[string]bool{
	".exe": true, ".bat": true, ".cmd": true, ".scr": true, ".com": true, ".msi": true,
	".dll": true, ".jar": true, ".apk": true, ".vbs": true, ".ps1": true, ".sh": true,
	".zip": true, ".rar": true, ".7z": true, ".tar": true, ".gz": true,
}

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".webm": true, ".mkv": true, ".m4v": true,
}

const (
	suspiciousFileScore   = 20
	videoBaselineScore    = 10
	imageFallbackScore    = 10
	objectPenalty         = 10
	defaultOCRWeight      = 0.3
	defaultMediaTimeout   = 5 * time.Second
	flagSuspiciousFile    = "suspicious_file"
	flagVideoReview       = "video_requires_review"
	flagImageUnverified   = "image_unverified"
	imageTextFlagPrefix   = "image_text_"
	imageObjectFlagPrefix = "image_object_"
)

// ImageAnnotation is what an image safety service reports about one image.
type ImageAnnotation struct {
	SafeSearch map[string]Likelihood
	Objects    []string
	Text       string
}

// ImageClassifier annotates an image by URL.
type ImageClassifier interface {
	Annotate(ctx context.Context, imageURL string) (ImageAnnotation, error)
}

// MediaResult is the verdict contribution of one media reference.
type MediaResult struct {
	RiskScore           int
	Flags               []string
	RequiresHumanReview bool
}

// textAnalyzer runs OCR text through the text pipeline.
type textAnalyzer interface {
	analyzeText(ctx context.Context, text string) Aggregate
}

// ImageModerator is the media pipeline. Images default to caution: there is
// no fast track and any classifier failure yields a review.
type ImageModerator struct {
	classifier ImageClassifier
	text       textAnalyzer
	decisions  *DecisionEngine
	timeout    time.Duration
	ocrWeight  float64
	log        *zap.Logger
	metrics    *metrics.Metrics
}

func newImageModerator(classifier ImageClassifier, text textAnalyzer, decisions *DecisionEngine, timeout time.Duration, ocrWeight float64, log *zap.Logger, m *metrics.Metrics) *ImageModerator {
	if timeout <= 0 {
		timeout = defaultMediaTimeout
	}
	if ocrWeight < 0 {
		ocrWeight = defaultOCRWeight
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ImageModerator{
		classifier: classifier,
		text:       text,
		decisions:  decisions,
		timeout:    timeout,
		ocrWeight:  ocrWeight,
		log:        log.With(zap.String("module", "image")),
		metrics:    m,
	}
}

// ModerateImage scores one media reference.
func (m *ImageModerator) ModerateImage(ctx context.Context, ref string) MediaResult {
	ext := mediaExtension(ref)
	if suspiciousExtensions[ext] {
		return MediaResult{RiskScore: suspiciousFileScore, Flags: []string{flagSuspiciousFile}, RequiresHumanReview: true}
	}
	if videoExtensions[ext] {
		return MediaResult{RiskScore: videoBaselineScore, Flags: []string{flagVideoReview}, RequiresHumanReview: true}
	}

	ann, err := m.annotate(ctx, ref)
	if err != nil {
		m.metrics.ClassifierCall("vision", "failure")
		m.log.Warn("image classifier unavailable, deferring to human review", zap.String("url", ref), zap.Error(err))
		return MediaResult{RiskScore: imageFallbackScore, Flags: []string{flagImageUnverified}, RequiresHumanReview: true}
	}
	m.metrics.ClassifierCall("vision", "success")

	score := 0
	var flags []string
	for _, c := range safeSearchFactors {
		l := ann.SafeSearch[c.name]
		score += l.Points() * c.factor
		if c.factor > 0 && l.Points() >= LikelihoodPossible.Points() {
			flags = append(flags, "image_"+c.name)
		}
	}

	for _, obj := range ann.Objects {
		name := strings.ToLower(strings.TrimSpace(obj))
		for _, concern := range concerningObjects {
			if strings.Contains(name, concern) {
				score += objectPenalty
				flags = append(flags, imageObjectFlagPrefix+concern)
				break
			}
		}
	}

	if text := strings.TrimSpace(ann.Text); text != "" && m.text != nil {
		agg := m.text.analyzeText(ctx, text)
		score += int(float64(agg.Score) * m.ocrWeight)
		for _, f := range agg.Flags {
			flags = append(flags, imageTextFlagPrefix+f)
		}
	}

	flags = uniqueSorted(flags)
	d := m.decisions.Decide(score, flags)
	return MediaResult{
		RiskScore:           score,
		Flags:               flags,
		RequiresHumanReview: d.RequiresHumanReview || d.Status != models.StatusApproved,
	}
}

func (m *ImageModerator) annotate(ctx context.Context, ref string) (ann ImageAnnotation, err error) {
	if m.classifier == nil {
		return ImageAnnotation{}, errors.New("no image classifier configured")
	}
	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("image classifier panic")
		}
	}()
	return m.classifier.Annotate(cctx, ref)
}

func mediaExtension(ref string) string {
	p := ref
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}
