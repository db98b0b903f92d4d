package moderation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func veryUnlikely() map[string]Likelihood {
	return map[string]Likelihood{
		"adult":    LikelihoodVeryUnlikely,
		"spoof":    LikelihoodVeryUnlikely,
		"medical":  LikelihoodVeryUnlikely,
		"violence": LikelihoodVeryUnlikely,
		"racy":     LikelihoodVeryUnlikely,
	}
}

func newTestImageModerator(c ImageClassifier, text textAnalyzer) *ImageModerator {
	return newImageModerator(c, text, NewDecisionEngine(nil), time.Second, defaultOCRWeight, nil, nil)
}

func TestModerateImageByExtension(t *testing.T) {
	images := &fakeImages{ann: ImageAnnotation{SafeSearch: veryUnlikely()}}
	m := newTestImageModerator(images, nil)
	ctx := context.Background()

	exe := m.ModerateImage(ctx, "https://cdn.example.com/files/Setup.EXE?download=1")
	assert.Equal(t, MediaResult{RiskScore: 20, Flags: []string{"suspicious_file"}, RequiresHumanReview: true}, exe)

	video := m.ModerateImage(ctx, "https://cdn.example.com/clip.mp4")
	assert.Equal(t, MediaResult{RiskScore: 10, Flags: []string{"video_requires_review"}, RequiresHumanReview: true}, video)

	assert.Zero(t, images.calls.Load(), "files and videos never reach the image classifier")
}

func TestModerateImageClassifierFailure(t *testing.T) {
	for name, c := range map[string]ImageClassifier{
		"error": &fakeImages{err: errors.New("quota exceeded")},
		"nil":   nil,
	} {
		t.Run(name, func(t *testing.T) {
			got := newTestImageModerator(c, nil).ModerateImage(context.Background(), "https://cdn.example.com/a.png")
			assert.Equal(t, MediaResult{RiskScore: 10, Flags: []string{"image_unverified"}, RequiresHumanReview: true}, got)
		})
	}
}

func TestModerateImageCleanImage(t *testing.T) {
	m := newTestImageModerator(&fakeImages{ann: ImageAnnotation{SafeSearch: veryUnlikely(), Objects: []string{"Cup", "Dog"}}}, nil)
	got := m.ModerateImage(context.Background(), "https://cdn.example.com/a.png")

	assert.Equal(t, 0, got.RiskScore)
	assert.Empty(t, got.Flags)
	assert.False(t, got.RequiresHumanReview)
}

func TestModerateImageSafeSearch(t *testing.T) {
	ss := veryUnlikely()
	ss["violence"] = LikelihoodPossible
	ss["racy"] = LikelihoodUnlikely
	ss["spoof"] = LikelihoodVeryLikely

	got := newTestImageModerator(&fakeImages{ann: ImageAnnotation{SafeSearch: ss}}, nil).
		ModerateImage(context.Background(), "https://cdn.example.com/a.jpg")

	assert.Equal(t, 3*3+1*2, got.RiskScore)
	assert.Equal(t, []string{"image_violence"}, got.Flags)
	assert.True(t, got.RequiresHumanReview)
}

func TestModerateImageObjects(t *testing.T) {
	ann := ImageAnnotation{SafeSearch: veryUnlikely(), Objects: []string{"Kitchen knife", "Beer bottle", "Table"}}
	got := newTestImageModerator(&fakeImages{ann: ann}, nil).ModerateImage(context.Background(), "https://cdn.example.com/a.jpg")

	assert.Equal(t, 20, got.RiskScore)
	assert.Equal(t, []string{"image_object_beer", "image_object_knife"}, got.Flags)
	assert.True(t, got.RequiresHumanReview)
}

func TestModerateImageOCRText(t *testing.T) {
	text := &fakeTextAnalyzer{agg: Aggregate{Score: 100, Flags: []string{"self_harm_critical"}}}
	ann := ImageAnnotation{SafeSearch: veryUnlikely(), Text: "  I want to kill myself  "}
	got := newTestImageModerator(&fakeImages{ann: ann}, text).ModerateImage(context.Background(), "https://cdn.example.com/meme.png")

	assert.Equal(t, []string{"I want to kill myself"}, text.seen)
	assert.Equal(t, 30, got.RiskScore)
	assert.Equal(t, []string{"image_text_self_harm_critical"}, got.Flags)
	assert.True(t, got.RequiresHumanReview)
}

func TestLikelihoodPoints(t *testing.T) {
	assert.Equal(t, 0, LikelihoodUnknown.Points())
	assert.Equal(t, 0, LikelihoodVeryUnlikely.Points())
	assert.Equal(t, 1, LikelihoodUnlikely.Points())
	assert.Equal(t, 3, LikelihoodPossible.Points())
	assert.Equal(t, 6, LikelihoodLikely.Points())
	assert.Equal(t, 10, LikelihoodVeryLikely.Points())
	assert.Equal(t, 0, Likelihood("bogus").Points())
}

func TestMediaExtension(t *testing.T) {
	assert.Equal(t, ".exe", mediaExtension("https://x.example.com/a/b.EXE?x=1#frag"))
	assert.Equal(t, ".png", mediaExtension("uploads/cat.png"))
	assert.Equal(t, "", mediaExtension("https://x.example.com/"))
}
