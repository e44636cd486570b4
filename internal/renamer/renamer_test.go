package renamer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tubevault/tubevault/internal/models"
)

func TestSourceEligibleForRenameAllSources(t *testing.T) {
	h := &Handler{RenameAllSources: true}
	assert.True(t, h.sourceEligibleForRename(&models.Source{Directory: "anything"}))
}

func TestSourceEligibleForRenameAllowlist(t *testing.T) {
	h := &Handler{RenameAllSources: false, RenameDirectoryAllowlist: []string{"keep-me"}}
	assert.True(t, h.sourceEligibleForRename(&models.Source{Directory: "keep-me"}))
	assert.False(t, h.sourceEligibleForRename(&models.Source{Directory: "not-listed"}))
}

func TestExtOf(t *testing.T) {
	assert.Equal(t, "mkv", extOf("/a/b/video.mkv"))
	assert.Equal(t, "", extOf("/a/b/noext"))
}
