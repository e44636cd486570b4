package pathname

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tubevault/tubevault/internal/models"
)

func TestRenderSlugifiesTitleAndSource(t *testing.T) {
	out, err := Render("{source}/{title}.{ext}", map[string]string{
		"source": "Some Channel!!", "title": "A Video: Part One", "ext": "mkv",
	})
	require.NoError(t, err)
	assert.Equal(t, "some-channel/a-video-part-one.mkv", out)
}

func TestRenderFullVariantOnlyStripsForbiddenChars(t *testing.T) {
	out, err := Render("{title_full}.{ext}", map[string]string{
		"title_full": "A Video: Part One?", "ext": "mkv",
	})
	require.NoError(t, err)
	assert.Equal(t, "A Video Part One.mkv", out)
}

func TestRenderUnknownPlaceholderIsError(t *testing.T) {
	_, err := Render("{bogus}/{title}.{ext}", map[string]string{"title": "x", "ext": "mkv"})
	require.Error(t, err)
	var unknown *ErrUnknownPlaceholder
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "bogus", unknown.Name)
}

func TestValidateTemplateRejectsEmptyRender(t *testing.T) {
	err := ValidateTemplate("{title_full}", map[string]string{"title_full": ""})
	require.Error(t, err)
}

func TestResolveWithinRootRejectsEscape(t *testing.T) {
	root := t.TempDir()
	_, err := ResolveWithinRoot(root, "channel", "../../etc/passwd")
	require.ErrorIs(t, err, ErrOutsideRoot)
}

func TestResolveWithinRootAllowsNested(t *testing.T) {
	root := t.TempDir()
	got, err := ResolveWithinRoot(root, "channel", "2024/video.mkv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "channel", "2024", "video.mkv"), got)
}

func TestSlugifyCapsLengthAndTrims(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "a"
	}
	assert.LessOrEqual(t, len(Slugify(long)), 80)
	assert.Equal(t, "untitled", Slugify("!!!"))
}

// TestRelocateScenarioS6 matches spec.md's scenario S6: a Media's
// media_file moves from old/foo.mkv to new/bar.mkv, its sidecars
// (foo.nfo, foo.jpg) move with it renamed to the new stem, and the now-empty
// old/ directory is pruned.
func TestRelocateScenarioS6(t *testing.T) {
	root := t.TempDir()
	oldDir := filepath.Join(root, "old")
	newDir := filepath.Join(root, "new")
	require.NoError(t, os.MkdirAll(oldDir, 0o755))

	oldPath := filepath.Join(oldDir, "foo.mkv")
	require.NoError(t, os.WriteFile(oldPath, []byte("video"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(oldDir, "foo.nfo"), []byte("<nfo/>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(oldDir, "foo.jpg"), []byte("jpeg"), 0o644))

	newPath := filepath.Join(newDir, "bar.mkv")
	require.NoError(t, Relocate(root, oldPath, newPath, false, ""))

	assert.FileExists(t, newPath)
	assert.FileExists(t, filepath.Join(newDir, "bar.nfo"))
	assert.FileExists(t, filepath.Join(newDir, "bar.jpg"))
	assert.NoFileExists(t, oldPath)
	assert.NoDirExists(t, oldDir)
}

func TestRelocateFuzzyMatchByRemoteKey(t *testing.T) {
	root := t.TempDir()
	oldDir := filepath.Join(root, "chan")
	require.NoError(t, os.MkdirAll(oldDir, 0o755))

	oldPath := filepath.Join(oldDir, "abc123.mkv")
	require.NoError(t, os.WriteFile(oldPath, []byte("video"), 0o644))
	// A fuzzy sidecar that does not share the stem but contains the key.
	require.NoError(t, os.WriteFile(filepath.Join(oldDir, "abc123-poster.jpg"), []byte("jpeg"), 0o644))

	newPath := filepath.Join(root, "chan2", "renamed.mkv")
	require.NoError(t, Relocate(root, oldPath, newPath, true, "abc123"))

	assert.FileExists(t, newPath)
	assert.FileExists(t, filepath.Join(root, "chan2", "renamed-poster.jpg"))
}

func TestVideoOrderChannelRestrictsToCalendarYear(t *testing.T) {
	y2023 := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	y2024a := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	y2024b := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	target := OrderableMedia{ID: uuid.New(), PublishedAt: &y2024b, CreatedAt: y2024b}
	other2023 := OrderableMedia{ID: uuid.New(), PublishedAt: &y2023, CreatedAt: y2023}
	other2024 := OrderableMedia{ID: uuid.New(), PublishedAt: &y2024a, CreatedAt: y2024a}

	siblings := []OrderableMedia{other2023, other2024, target}
	assert.Equal(t, "02", VideoOrder(models.KindChannelNamed, siblings, target))
}

func TestVideoOrderPlaylistSpansAllYears(t *testing.T) {
	y2023 := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	y2024 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	first := OrderableMedia{ID: uuid.New(), PublishedAt: &y2023, CreatedAt: y2023}
	second := OrderableMedia{ID: uuid.New(), PublishedAt: &y2024, CreatedAt: y2024}

	siblings := []OrderableMedia{first, second}
	assert.Equal(t, "01", VideoOrder(models.KindPlaylist, siblings, first))
	assert.Equal(t, "02", VideoOrder(models.KindPlaylist, siblings, second))
}

func TestBuildVarsUsesPublishedAtOverCreatedAt(t *testing.T) {
	created := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	published := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	src := &models.Source{
		DisplayName: "My Channel",
		Kind:        models.KindChannelNamed,
		QualityPolicy: models.QualityPolicy{
			Resolution: models.Resolution1080, VideoCodec: models.CodecVP9, AudioCodec: models.CodecOPUS,
		},
	}
	media := &models.Media{
		ID: uuid.New(), RemoteKey: "xyz", Title: "A Title",
		CreatedAt: created, PublishedAt: &published,
	}
	vars := BuildVars(src, media, models.MetadataValue{Uploader: "someone"}, "mkv", nil)
	assert.Equal(t, "20240304", vars["yyyymmdd"])
	assert.Equal(t, "2024", vars["yyyy"])
	assert.Equal(t, "someone", vars["uploader"])
	assert.Equal(t, "mkv", vars["ext"])
}
