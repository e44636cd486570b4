package extractor

import (
	"strings"

	"github.com/tubevault/tubevault/internal/models"
)

// NormalizeFormats translates a FetchMediaDetails response's raw format
// list into the Format Matcher's models.FormatValue shape (spec.md §4.2/
// §4.3): codec names are upper-cased with trailing digit-runs stripped
// (e.g. "vp9.2" -> "VP9", "avc1" is left alone since it carries no run),
// and the is_60fps/is_hdr bits are derived rather than carried verbatim.
func NormalizeFormats(raw []RawFormat) []models.FormatValue {
	out := make([]models.FormatValue, 0, len(raw))
	for _, f := range raw {
		out = append(out, models.FormatValue{
			ID:           f.FormatID,
			FormatNote:   f.FormatNote,
			Height:       f.Height,
			Width:        f.Width,
			VCodec:       normalizeCodec(f.VCodec),
			ACodec:       normalizeCodec(f.ACodec),
			FPS:          f.FPS,
			VBR:          f.VBR,
			ABR:          f.ABR,
			Is60FPS:      f.FPS >= 50,
			IsHDR:        isHDRRange(f.DynamicRange),
			LanguageCode: f.Language,
		})
	}
	return out
}

// normalizeCodec upper-cases a raw vcodec/acodec string and strips a
// trailing ".<digits>" profile suffix, e.g. "vp09.00.10.08" -> "VP09",
// "vp9.2" -> "VP9". "none" (yt-dlp's no-stream marker) becomes "".
func normalizeCodec(raw string) string {
	if raw == "" || raw == "none" {
		return ""
	}
	codec := strings.ToUpper(raw)
	if dot := strings.IndexByte(codec, '.'); dot >= 0 {
		codec = codec[:dot]
	}
	return codec
}

// isHDRRange reports whether yt-dlp's dynamic_range field names an HDR
// transfer characteristic.
func isHDRRange(dynamicRange string) bool {
	switch strings.ToUpper(dynamicRange) {
	case "HDR10", "HDR10+", "HLG", "DV":
		return true
	default:
		return false
	}
}
