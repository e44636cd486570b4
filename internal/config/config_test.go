package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tubevault/tubevault/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "DOWNLOAD_ROOT", "HD_CUTOFF_HEIGHT", "ENGLISH_LANGUAGE_CODES", "RENAME_ALL_SOURCES"} {
		os.Unsetenv(k)
	}
	cfg := Load()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/downloads", cfg.DownloadRoot)
	assert.Equal(t, 500, cfg.HDCutoffHeight)
	assert.Equal(t, 360, cfg.MinFallbackHeight)
	assert.True(t, cfg.RenameAllSources)
	assert.Equal(t, []string{"en", "en-US", "en-GB", "en-us", "en-gb"}, cfg.EnglishLanguageCodes)
}

func TestLoadOverrides(t *testing.T) {
	os.Setenv("DOWNLOAD_ROOT", "/mnt/media")
	os.Setenv("HD_CUTOFF_HEIGHT", "720")
	os.Setenv("TASK_HISTORY_RETENTION", "12h")
	os.Setenv("ENGLISH_LANGUAGE_CODES", "en, en-GB ,,en-AU")
	defer func() {
		os.Unsetenv("DOWNLOAD_ROOT")
		os.Unsetenv("HD_CUTOFF_HEIGHT")
		os.Unsetenv("TASK_HISTORY_RETENTION")
		os.Unsetenv("ENGLISH_LANGUAGE_CODES")
	}()

	cfg := Load()
	assert.Equal(t, "/mnt/media", cfg.DownloadRoot)
	assert.Equal(t, 720, cfg.HDCutoffHeight)
	assert.Equal(t, 12*time.Hour, cfg.TaskHistoryRetention)
	assert.Equal(t, []string{"en", "en-GB", "en-AU"}, cfg.EnglishLanguageCodes)
}

func TestEnvListFallsBackOnBlank(t *testing.T) {
	os.Setenv("EMPTY_LIST_VAR", "   ,  ,")
	defer os.Unsetenv("EMPTY_LIST_VAR")
	assert.Equal(t, []string{"a", "b"}, envList("EMPTY_LIST_VAR", []string{"a", "b"}))
}

func validSource() *models.Source {
	return &models.Source{
		Kind:          models.KindChannelNamed,
		Key:           "example-channel",
		DisplayName:   "Example Channel",
		Directory:     "example-channel",
		MediaTemplate: "{source}/{title}.{ext}",
		QualityPolicy: models.QualityPolicy{
			Resolution: models.Resolution1080,
			AudioCodec: models.CodecOPUS,
			Fallback:   models.FallbackFail,
		},
	}
}

func TestValidateSourceAccepts(t *testing.T) {
	require.NoError(t, ValidateSource(validSource()))
}

func TestValidateSourceRejectsMissingRequiredField(t *testing.T) {
	src := validSource()
	src.Key = ""
	assert.Error(t, ValidateSource(src))
}

func TestValidateSourceRejectsUnknownPlaceholderTemplate(t *testing.T) {
	src := validSource()
	src.MediaTemplate = "{unknown_placeholder}"
	assert.Error(t, ValidateSource(src))
}
