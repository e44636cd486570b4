package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tubevault/tubevault/internal/taskerr"
)

func TestNormalizeFormatsStripsCodecVersionSuffix(t *testing.T) {
	out := NormalizeFormats([]RawFormat{
		{FormatID: "248", Height: 1080, VCodec: "vp9.2", ACodec: "none", FPS: 30},
		{FormatID: "251", VCodec: "none", ACodec: "opus", Language: "en"},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "VP9", out[0].VCodec)
	assert.Equal(t, "", out[0].ACodec)
	assert.False(t, out[0].Is60FPS)
	assert.Equal(t, "OPUS", out[1].ACodec)
	assert.Equal(t, "en", out[1].LanguageCode)
}

func TestNormalizeFormatsDerivesIs60FPSAndHDR(t *testing.T) {
	out := NormalizeFormats([]RawFormat{
		{FormatID: "1", FPS: 60, DynamicRange: "HDR10"},
		{FormatID: "2", FPS: 30, DynamicRange: "SDR"},
	})
	assert.True(t, out[0].Is60FPS)
	assert.True(t, out[0].IsHDR)
	assert.False(t, out[1].Is60FPS)
	assert.False(t, out[1].IsHDR)
}

func TestNormalizeCodecLeavesPlainNamesAlone(t *testing.T) {
	assert.Equal(t, "AVC1", normalizeCodec("avc1"))
	assert.Equal(t, "", normalizeCodec("none"))
	assert.Equal(t, "", normalizeCodec(""))
}

func TestIsHDRRangeRecognizesKnownRanges(t *testing.T) {
	assert.True(t, isHDRRange("hdr10+"))
	assert.True(t, isHDRRange("HLG"))
	assert.True(t, isHDRRange("dv"))
	assert.False(t, isHDRRange("SDR"))
	assert.False(t, isHDRRange(""))
}

func TestMediaURL(t *testing.T) {
	assert.Equal(t, "https://www.youtube.com/watch?v=abc123", MediaURL("abc123"))
}

func TestClassifyRunErrorMapsRateLimit(t *testing.T) {
	err := classifyRunError(assert.AnError, []byte("ERROR: HTTP Error 429: Too Many Requests"))
	assert.ErrorIs(t, err, taskerr.RateLimited)
}

func TestClassifyRunErrorMapsFormatUnavailable(t *testing.T) {
	err := classifyRunError(assert.AnError, []byte("ERROR: Requested format is not available"))
	var fu *taskerr.FormatUnavailableError
	require.ErrorAs(t, err, &fu)
}

func TestClassifyRunErrorMapsPermanentRemoval(t *testing.T) {
	err := classifyRunError(assert.AnError, []byte("ERROR: Video unavailable. This video has been removed"))
	assert.ErrorIs(t, err, taskerr.Permanent)
}

func TestClassifyRunErrorDefaultsToTransient(t *testing.T) {
	err := classifyRunError(assert.AnError, []byte("some unrecognized network blip"))
	assert.ErrorIs(t, err, taskerr.Transient)
}

func TestParseProgressLineExtractsPercent(t *testing.T) {
	pct, stage, ok := parseProgressLine("[download]  42.5% of 10.00MiB at 1.00MiB/s ETA 00:05")
	require.True(t, ok)
	assert.Equal(t, "downloading", stage)
	assert.InDelta(t, 42.5, pct, 0.01)
}

func TestParseProgressLineRecognizesAlreadyDownloaded(t *testing.T) {
	pct, stage, ok := parseProgressLine("[download] video.mkv has already been downloaded")
	require.True(t, ok)
	assert.Equal(t, "finished", stage)
	assert.Equal(t, 100.0, pct)
}

func TestParsePremiereETA(t *testing.T) {
	eta, ok := parsePremiereETA("1700000000")
	require.True(t, ok)
	assert.Equal(t, int64(1700000000), eta.Unix())

	_, ok = parsePremiereETA("")
	assert.False(t, ok)
}
