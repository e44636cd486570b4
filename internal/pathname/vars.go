package pathname

import (
	"fmt"

	"github.com/tubevault/tubevault/internal/models"
)

// BuildVars assembles the Path/Name Engine's variable map for one Media
// (spec.md §4.4's recognized placeholder set), shared by the Downloader's
// initial placement and the renamer's template-changed re-placement so
// both compute the same path for the same Media.
func BuildVars(src *models.Source, media *models.Media, meta models.MetadataValue, ext string, siblings []OrderableMedia) map[string]string {
	published := media.CreatedAt
	if media.PublishedAt != nil {
		published = *media.PublishedAt
	}
	height := src.QualityPolicy.Resolution.Height()
	width := ""
	if media.DownloadedWidth > 0 {
		width = fmt.Sprintf("%d", media.DownloadedWidth)
	}
	fps := ""
	if media.DownloadedFPS > 0 {
		fps = fmt.Sprintf("%d", media.DownloadedFPS)
	}
	return map[string]string{
		"yyyymmdd":       published.Format("20060102"),
		"yyyy_mm_dd":     published.Format("2006-01-02"),
		"yyyy":           published.Format("2006"),
		"mm":             published.Format("01"),
		"dd":             published.Format("02"),
		"source":         src.DisplayName,
		"source_full":    src.DisplayName,
		"uploader":       meta.Uploader,
		"title":          media.Title,
		"title_full":     media.Title,
		"key":            media.RemoteKey,
		"format":         string(src.QualityPolicy.Resolution),
		"playlist_title": src.DisplayName,
		"video_order":    VideoOrder(src.Kind, siblings, OrderableMedia{ID: media.ID, RemoteKey: media.RemoteKey, PublishedAt: media.PublishedAt, CreatedAt: media.CreatedAt}),
		"ext":            ext,
		"resolution":     string(src.QualityPolicy.Resolution),
		"height":         fmt.Sprintf("%d", height),
		"width":          width,
		"vcodec":         string(src.QualityPolicy.VideoCodec),
		"acodec":         string(src.QualityPolicy.AudioCodec),
		"fps":            fps,
		"hdr":            "0",
	}
}
