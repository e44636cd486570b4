package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tubevault/tubevault/internal/extractor"
	"github.com/tubevault/tubevault/internal/models"
)

func TestPassesFiltersRegexExcludesMatch(t *testing.T) {
	src := &models.Source{FilterRegex: "trailer"}
	ok, reason := passesFilters(src, &extractor.RawMetadata{Title: "Official Trailer"})
	assert.False(t, ok)
	assert.Contains(t, reason, "filter_regex")
}

func TestPassesFiltersRegexInvertRequiresMatch(t *testing.T) {
	src := &models.Source{FilterRegex: "trailer", FilterInvert: true}
	ok, _ := passesFilters(src, &extractor.RawMetadata{Title: "Episode One"})
	assert.False(t, ok)

	ok, _ = passesFilters(src, &extractor.RawMetadata{Title: "Trailer Two"})
	assert.True(t, ok)
}

func TestPassesFiltersDurationMinimum(t *testing.T) {
	src := &models.Source{DurationFilter: models.DurationFilter{Seconds: 120, Min: true}}
	ok, reason := passesFilters(src, &extractor.RawMetadata{Duration: 60})
	assert.False(t, ok)
	assert.Contains(t, reason, "minimum")

	ok, _ = passesFilters(src, &extractor.RawMetadata{Duration: 180})
	assert.True(t, ok)
}

func TestPassesFiltersDurationMaximum(t *testing.T) {
	src := &models.Source{DurationFilter: models.DurationFilter{Seconds: 60, Max: true}}
	ok, reason := passesFilters(src, &extractor.RawMetadata{Duration: 120})
	assert.False(t, ok)
	assert.Contains(t, reason, "maximum")
}

func TestPassesFiltersNoRestrictionsPasses(t *testing.T) {
	ok, reason := passesFilters(&models.Source{}, &extractor.RawMetadata{Title: "anything", Duration: 10})
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestDecodeJPEGDimensionsMissingFileReturnsZero(t *testing.T) {
	w, h := decodeJPEGDimensions("/nonexistent/path.jpg")
	assert.Equal(t, 0, w)
	assert.Equal(t, 0, h)
}
