package downloader

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tubevault/tubevault/internal/matcher"
	"github.com/tubevault/tubevault/internal/models"
)

func TestMediaSourceURL(t *testing.T) {
	media := &models.Media{RemoteKey: "abc123"}
	assert.Equal(t, "https://www.youtube.com/watch?v=abc123", mediaSourceURL(&models.Source{}, media))
}

func TestPopulateDownloadedDimensionsCombinedSelector(t *testing.T) {
	media := &models.Media{}
	formats := []models.FormatValue{
		{ID: "248", Height: 1080, Width: 1920, VCodec: "VP9", FPS: 30, IsHDR: true},
		{ID: "251", ACodec: "OPUS"},
	}
	populateDownloadedDimensions(media, formats, matcher.Selection{Selector: "248+251"})

	assert.Equal(t, 1080, media.DownloadedHeight)
	assert.Equal(t, 1920, media.DownloadedWidth)
	assert.Equal(t, "VP9", media.DownloadedVCodec)
	assert.Equal(t, "OPUS", media.DownloadedACodec)
	assert.Equal(t, 30, media.DownloadedFPS)
	assert.True(t, media.DownloadedHDR)
}

func TestPopulateDownloadedDimensionsSingleAudioOnlySelector(t *testing.T) {
	media := &models.Media{}
	formats := []models.FormatValue{
		{ID: "140", ACodec: "MP4A"},
	}
	populateDownloadedDimensions(media, formats, matcher.Selection{Selector: "140"})

	assert.Equal(t, 0, media.DownloadedHeight)
	assert.Equal(t, "MP4A", media.DownloadedACodec)
}
