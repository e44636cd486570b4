package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tubevault/tubevault/internal/models"
)

func TestScenarioS1ExactCombinedSplit(t *testing.T) {
	policy := models.QualityPolicy{
		Resolution: models.Resolution1080, VideoCodec: models.CodecVP9, AudioCodec: models.CodecOPUS,
		Fallback: models.FallbackFail,
	}
	formats := []models.FormatValue{
		{ID: "248", Height: 1080, VCodec: "VP9"},
		{ID: "251", ACodec: "OPUS"},
		{ID: "137", Height: 1080, VCodec: "AVC1"},
		{ID: "140", ACodec: "MP4A"},
	}
	sel, ok := Select(policy, formats)
	require.True(t, ok)
	assert.Equal(t, "248+251", sel.Selector)
	assert.True(t, sel.Exact)
}

func TestScenarioS2NextBestHD(t *testing.T) {
	policy := models.QualityPolicy{
		Resolution: models.Resolution1080, VideoCodec: models.CodecVP9, AudioCodec: models.CodecOPUS,
		Fallback: models.FallbackRequireHD,
	}
	formats := []models.FormatValue{
		{ID: "247", Height: 720, VCodec: "VP9"},
		{ID: "251", ACodec: "OPUS"},
	}
	sel, ok := Select(policy, formats)
	require.True(t, ok)
	assert.Equal(t, "247+251", sel.Selector)
	assert.False(t, sel.Exact)
}

func TestScenarioS3AudioOnly(t *testing.T) {
	policy := models.QualityPolicy{Resolution: models.ResolutionAudio, AudioCodec: models.CodecMP4A, Fallback: models.FallbackFail}
	formats := []models.FormatValue{
		{ID: "140", ACodec: "MP4A"},
		{ID: "251", ACodec: "OPUS"},
	}
	sel, ok := Select(policy, formats)
	require.True(t, ok)
	assert.Equal(t, "140", sel.Selector)
	assert.True(t, sel.Exact)
}

func TestScenarioS4CombinedMatch(t *testing.T) {
	policy := models.QualityPolicy{Resolution: models.Resolution360, VideoCodec: models.CodecAVC1, AudioCodec: models.CodecMP4A, Fallback: models.FallbackFail}
	formats := []models.FormatValue{
		{ID: "18", FormatNote: "360p", Height: 360, VCodec: "AVC1", ACodec: "MP4A"},
	}
	r := BestCombined(policy, formats)
	require.True(t, r.Found)
	assert.True(t, r.Exact)
	assert.Equal(t, "18", r.ID)
}

func TestAudioOnlyPolicyRejectsVideo(t *testing.T) {
	policy := models.QualityPolicy{Resolution: models.ResolutionAudio, AudioCodec: models.CodecOPUS, Fallback: models.FallbackNextBest}
	formats := []models.FormatValue{{ID: "137", Height: 1080, VCodec: "AVC1"}}
	r := BestVideo(policy, formats)
	assert.False(t, r.Found)
}

func TestFallbackFailNeverReturnsNonExact(t *testing.T) {
	policy := models.QualityPolicy{Resolution: models.Resolution1080, VideoCodec: models.CodecVP9, AudioCodec: models.CodecOPUS, Fallback: models.FallbackFail}
	formats := []models.FormatValue{
		{ID: "247", Height: 720, VCodec: "VP9"},
		{ID: "251", ACodec: "OPUS"},
	}
	r := BestVideo(policy, formats)
	assert.False(t, r.Found)
}

func TestRequireHDRejectsBelowCutoff(t *testing.T) {
	policy := models.QualityPolicy{Resolution: models.Resolution1080, VideoCodec: models.CodecVP9, AudioCodec: models.CodecOPUS, Fallback: models.FallbackRequireHD}
	formats := []models.FormatValue{
		{ID: "144", Height: 144, VCodec: "VP9"},
	}
	r := BestVideo(policy, formats)
	assert.False(t, r.Found)
}

func TestUpscaledFormatNeverSelected(t *testing.T) {
	policy := models.QualityPolicy{Resolution: models.Resolution1080, VideoCodec: models.CodecVP9, AudioCodec: models.CodecOPUS, Fallback: models.FallbackNextBest}
	formats := []models.FormatValue{
		{ID: "248-sr", Height: 1080, VCodec: "VP9"},
	}
	r := BestVideo(policy, formats)
	assert.False(t, r.Found)
}

func TestMatcherIsPure(t *testing.T) {
	policy := models.QualityPolicy{Resolution: models.Resolution720, VideoCodec: models.CodecAV1, AudioCodec: models.CodecOPUS, Fallback: models.FallbackNextBest}
	formats := []models.FormatValue{
		{ID: "1", Height: 720, VCodec: "AV1"},
		{ID: "2", ACodec: "OPUS"},
	}
	a, okA := Select(policy, formats)
	b, okB := Select(policy, formats)
	require.Equal(t, okA, okB)
	assert.Equal(t, a, b)
}
