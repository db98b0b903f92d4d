package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/tullo/guardian/internal/metrics"
	"github.com/tullo/guardian/internal/models"
)

// ErrInvalidRequest is the only error Moderate returns.
var ErrInvalidRequest = errors.New("invalid moderation request")

// ResultCache memoizes verdicts by content key.
type ResultCache interface {
	Get(ctx context.Context, key string) (*models.ModerationResult, bool)
	Put(ctx context.Context, key string, result *models.ModerationResult)
}

// Recorder receives every freshly computed verdict.
type Recorder interface {
	Record(ctx context.Context, req models.ModerationRequest, result *models.ModerationResult)
}

// Options are the tunable knobs of the engine.
type Options struct {
	Weights            Weights
	FastTrackMaxLength int
	PatternConfidence  float64
	ClassifierTimeout  time.Duration
	MediaTimeout       time.Duration
	OCRWeight          float64
	DedupeInFlight     bool
}

func DefaultOptions() Options {
	return Options{
		Weights:            DefaultWeights(),
		FastTrackMaxLength: defaultFastTrackMaxLength,
		PatternConfidence:  defaultPatternConfidence,
		ClassifierTimeout:  defaultClassifierTimeout,
		MediaTimeout:       defaultMediaTimeout,
		OCRWeight:          defaultOCRWeight,
		DedupeInFlight:     true,
	}
}

// Deps are the collaborators of the engine. Everything except Rules may be nil.
type Deps struct {
	Rules           *RuleSet
	DecisionRules   []DecisionRule
	Classifiers     []WeightedClassifier
	ImageClassifier ImageClassifier
	Cache           ResultCache
	Recorder        Recorder
	Logger          *zap.Logger
	Metrics         *metrics.Metrics
	Clock           func() time.Time
}

// Engine runs the full moderation pipeline for one request.
type Engine struct {
	fastTrack  *FastTrackClassifier
	scorer     *PatternScorer
	aggregator *Aggregator
	decisions  *DecisionEngine
	images     *ImageModerator
	cache      ResultCache
	recorder   Recorder
	log        *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	opts       Options
	inflight   singleflight.Group
}

func NewEngine(deps Deps, opts Options) *Engine {
	if deps.Rules == nil {
		deps.Rules = DefaultRuleSet()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if opts.PatternConfidence <= 0 || opts.PatternConfidence > 1 {
		opts.PatternConfidence = defaultPatternConfidence
	}
	log := deps.Logger.With(zap.String("module", "moderation"))

	e := &Engine{
		fastTrack:  NewFastTrackClassifier(deps.Rules, opts.FastTrackMaxLength),
		scorer:     NewPatternScorer(deps.Rules, opts.Weights),
		aggregator: NewAggregator(deps.Classifiers, opts.ClassifierTimeout, opts.PatternConfidence, log, deps.Metrics),
		decisions:  NewDecisionEngine(deps.DecisionRules),
		cache:      deps.Cache,
		recorder:   deps.Recorder,
		log:        log,
		metrics:    deps.Metrics,
		now:        deps.Clock,
		opts:       opts,
	}
	e.images = newImageModerator(deps.ImageClassifier, e, e.decisions, opts.MediaTimeout, opts.OCRWeight, log, deps.Metrics)
	return e
}

// Moderate produces a verdict for req. Only malformed requests return an
// error; classifier, persistence and internal failures are absorbed into the
// result.
func (e *Engine) Moderate(ctx context.Context, req models.ModerationRequest) (*models.ModerationResult, error) {
	start := e.now()
	defer e.metrics.TrackActive()()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	key := ContentKey(req.Content, req.MediaRefs)
	if e.cache != nil {
		if cached, ok := e.cache.Get(ctx, key); ok && cached != nil {
			e.metrics.CacheLookup(true)
			res := cached.Clone()
			res.ProcessingTimeMs = e.elapsedMs(start)
			e.metrics.ObserveVerdict(string(res.Status), "cache", e.now().Sub(start))
			return res, nil
		}
		e.metrics.CacheLookup(false)
	}

	var v verdict
	if e.opts.DedupeInFlight {
		// The shared evaluation must not depend on whichever caller started
		// it, so it runs detached and bounded by the stage timeouts.
		ch := e.inflight.DoChan(key, func() (any, error) {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.sharedTimeout())
			defer cancel()
			return e.compute(sctx, key, req), nil
		})
		select {
		case r := <-ch:
			v = r.Val.(verdict)
			v.result = v.result.Clone()
		case <-ctx.Done():
			// This caller gave up; it gets a pattern-only verdict while the
			// shared evaluation carries on for everyone else.
			v = e.compute(ctx, key, req)
		}
	} else {
		v = e.compute(ctx, key, req)
	}

	res := v.result
	res.ProcessingTimeMs = e.elapsedMs(start)
	// Every caller gets its own audit trail, even when the evaluation was shared.
	if e.recorder != nil {
		e.recorder.Record(ctx, req, res)
	}
	e.metrics.ObserveVerdict(string(res.Status), v.source, e.now().Sub(start))
	e.log.Debug("moderation verdict",
		zap.String("author_id", req.AuthorID),
		zap.String("content_type", string(req.ContentType)),
		zap.String("status", string(res.Status)),
		zap.Int("risk_score", res.RiskScore),
		zap.Strings("flags", res.Flags),
		zap.String("source", v.source),
	)
	return res, nil
}

type verdict struct {
	result *models.ModerationResult
	source string
}

// compute evaluates req and memoizes complete verdicts.
func (e *Engine) compute(ctx context.Context, key string, req models.ModerationRequest) verdict {
	res, source := e.evaluate(ctx, req)

	// Partial and fail-closed verdicts are not memoized.
	if e.cache != nil && source != "fail_closed" && ctx.Err() == nil {
		e.cache.Put(ctx, key, res)
	}
	return verdict{result: res, source: source}
}

// sharedTimeout bounds a deduplicated evaluation. OCR text can follow image
// annotation, so both stage timeouts add up.
func (e *Engine) sharedTimeout() time.Duration {
	ct, mt := e.opts.ClassifierTimeout, e.opts.MediaTimeout
	if ct <= 0 {
		ct = defaultClassifierTimeout
	}
	if mt <= 0 {
		mt = defaultMediaTimeout
	}
	return ct + mt
}

func (e *Engine) evaluate(ctx context.Context, req models.ModerationRequest) (res *models.ModerationResult, source string) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("moderation pipeline panic, failing closed", zap.Any("panic", r))
			res, source = failClosedResult(), "fail_closed"
		}
	}()

	if len(req.MediaRefs) == 0 {
		if ft := e.fastTrack.Classify(req.Content); ft != nil {
			return ft, "fast_track"
		}
	}

	var text Aggregate
	media := make([]MediaResult, len(req.MediaRefs))

	var g errgroup.Group
	g.Go(func() (err error) {
		defer recoverInto(&err)
		text = e.analyzeText(ctx, req.Content)
		return nil
	})
	for i, ref := range req.MediaRefs {
		g.Go(func() (err error) {
			defer recoverInto(&err)
			media[i] = e.images.ModerateImage(ctx, ref)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.log.Error("moderation stage failed, failing closed", zap.Error(err))
		return failClosedResult(), "fail_closed"
	}

	score := text.Score
	flags := append([]string(nil), text.Flags...)
	mediaReview := false
	for _, m := range media {
		score += m.RiskScore
		flags = append(flags, m.Flags...)
		mediaReview = mediaReview || m.RequiresHumanReview
	}
	flags = uniqueSorted(flags)

	d := e.decisions.Decide(score, flags)
	if mediaReview && d.Status == models.StatusApproved {
		d = Decision{
			Status:              models.StatusFlagged,
			RequiresHumanReview: true,
			Reason:              "Attached media must be checked by a moderator",
		}
	}

	return &models.ModerationResult{
		Status:              d.Status,
		RiskScore:           score,
		Flags:               flags,
		Confidence:          text.Confidence,
		RequiresHumanReview: d.RequiresHumanReview || mediaReview,
		Reason:              d.Reason,
		Suggestions:         d.Suggestions,
	}, "pipeline"
}

// analyzeText runs the pattern scorer and the external classifiers on text.
func (e *Engine) analyzeText(ctx context.Context, text string) Aggregate {
	if strings.TrimSpace(text) == "" {
		return Aggregate{Flags: []string{}, Confidence: e.opts.PatternConfidence}
	}
	pattern := e.scorer.Score(text)
	return e.aggregator.Aggregate(ctx, text, pattern)
}

func (e *Engine) elapsedMs(start time.Time) int64 {
	return e.now().Sub(start).Milliseconds()
}

func validateRequest(req models.ModerationRequest) error {
	if strings.TrimSpace(req.AuthorID) == "" {
		return fmt.Errorf("%w: author id is required", ErrInvalidRequest)
	}
	if !req.ContentType.Valid() {
		return fmt.Errorf("%w: unknown content type %q", ErrInvalidRequest, req.ContentType)
	}
	if strings.TrimSpace(req.Content) == "" && len(req.MediaRefs) == 0 {
		return fmt.Errorf("%w: content or media is required", ErrInvalidRequest)
	}
	for _, ref := range req.MediaRefs {
		if strings.TrimSpace(ref) == "" {
			return fmt.Errorf("%w: empty media reference", ErrInvalidRequest)
		}
	}
	return nil
}

func failClosedResult() *models.ModerationResult {
	d := failClosedDecision()
	return &models.ModerationResult{
		Status:              d.Status,
		Flags:               []string{"internal_error"},
		RequiresHumanReview: d.RequiresHumanReview,
		Reason:              d.Reason,
	}
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("panic: %v", r)
	}
}
