package downloader

import (
	"strings"

	"github.com/tubevault/tubevault/internal/extractor"
	"github.com/tubevault/tubevault/internal/matcher"
	"github.com/tubevault/tubevault/internal/models"
)

// mediaSourceURL derives the remote URL the extractor downloads from a
// Media's remote key.
func mediaSourceURL(src *models.Source, media *models.Media) string {
	return extractor.MediaURL(media.RemoteKey)
}

// populateDownloadedDimensions fills in the Media's downloaded_{height,
// width,vcodec,acodec,fps,hdr} fields by looking up the format(s) the
// Format Matcher selected (spec.md §4.7 step 4).
func populateDownloadedDimensions(media *models.Media, formats []models.FormatValue, sel matcher.Selection) {
	ids := strings.Split(sel.Selector, "+")
	for _, f := range formats {
		for _, id := range ids {
			if f.ID != id {
				continue
			}
			if f.Height > 0 {
				media.DownloadedHeight = f.Height
				media.DownloadedWidth = f.Width
				media.DownloadedVCodec = f.VCodec
				media.DownloadedFPS = int(f.FPS)
				media.DownloadedHDR = f.IsHDR
			}
			if f.ACodec != "" {
				media.DownloadedACodec = f.ACodec
			}
		}
	}
}

// bestAvailableHeight returns the tallest video Height among formats, for
// the post-download upgrade check (spec.md §4.7 step 4).
func bestAvailableHeight(formats []models.FormatValue) int {
	best := 0
	for _, f := range formats {
		if f.Height > best {
			best = f.Height
		}
	}
	return best
}
