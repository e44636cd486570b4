// Package matcher implements the Format Matcher (spec.md §4.3): a pure,
// side-effect-free set of functions that pick the best audio/video/
// combined format for a Media given a Source's quality policy. Grounded on
// original_source/tubesync/sync/matching.py's get_best_combined_format,
// get_best_audio_format and get_best_video_format.
package matcher

import (
	"sort"
	"strings"

	"github.com/tubevault/tubevault/internal/models"
)

// MinHeight is the lowest acceptable fallback video height (spec.md §4.3
// step 8's refill candidate set), matching tubesync's VIDEO_HEIGHT_CUTOFF
// default of 360. Overridable at startup from the "minimum acceptable
// fallback height" setting (spec.md §6); config.Load's caller assigns it
// before any matching runs.
var MinHeight = 360

// HDCutoff is the minimum height REQUIRE_HD fallback accepts, matching
// tubesync's VIDEO_HEIGHT_IS_HD default of 500. Overridable at startup
// from the "HD cutoff height" setting (spec.md §6).
var HDCutoff = 500

// EnglishLanguageCodes is the ordered tie-break preference list used when
// multiple formats match equally well (spec.md §4.3). Overridable at
// startup from the "English-language preference list" setting.
var EnglishLanguageCodes = []string{"en", "en-US", "en-GB", "en-us", "en-gb"}

// Result is the Format Matcher's verdict for one sub-function.
type Result struct {
	Found bool
	Exact bool
	ID    string
}

// Miss is the zero Result: no candidate found.
var Miss = Result{}

func preferDefaultOrEnglish(candidates []models.FormatValue) models.FormatValue {
	for _, c := range candidates {
		if strings.Contains(c.FormatNote, "(default)") {
			return c
		}
	}
	for _, lc := range EnglishLanguageCodes {
		for _, c := range candidates {
			if c.LanguageCode == lc {
				return c
			}
		}
	}
	return candidates[0]
}

// BestCombined searches for a single format containing both a video and
// an audio stream that exactly matches the policy (spec.md §4.3 "Best
// combined").
func BestCombined(policy models.QualityPolicy, formats []models.FormatValue) Result {
	height := policy.Resolution.Height()
	var matches []models.FormatValue
	for _, f := range formats {
		if !f.IsCombined() {
			continue
		}
		if f.Height != height {
			continue
		}
		if string(f.VCodec) != string(policy.VideoCodec) {
			continue
		}
		if string(f.ACodec) != string(policy.AudioCodec) {
			continue
		}
		if policy.Prefer60FPS && !f.Is60FPS {
			continue
		}
		if policy.PreferHDR && !f.IsHDR {
			continue
		}
		matches = append(matches, f)
	}
	if len(matches) == 0 {
		return Miss
	}
	return Result{Found: true, Exact: true, ID: preferDefaultOrEnglish(matches).ID}
}

// BestAudio filters audio-only formats and picks the one matching the
// policy's audio codec, or the highest-bitrate fallback if allowed
// (spec.md §4.3 "Best audio").
func BestAudio(policy models.QualityPolicy, formats []models.FormatValue) Result {
	var audioOnly []models.FormatValue
	for _, f := range formats {
		if f.IsAudioOnly() {
			audioOnly = append(audioOnly, f)
		}
	}
	if len(audioOnly) == 0 {
		return Miss
	}

	var exactMatches []models.FormatValue
	for _, f := range audioOnly {
		if string(f.ACodec) == string(policy.AudioCodec) {
			exactMatches = append(exactMatches, f)
		}
	}
	if len(exactMatches) > 0 {
		return Result{Found: true, Exact: true, ID: preferDefaultOrEnglish(exactMatches).ID}
	}

	if !policy.Fallback.CanFallback() {
		return Miss
	}

	sorted := append([]models.FormatValue(nil), audioOnly...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ABR > sorted[j].ABR })
	return Result{Found: true, Exact: false, ID: sorted[0].ID}
}

// BestVideo implements spec.md §4.3's "Best video" sub-function and its
// 8-step preference ladder.
func BestVideo(policy models.QualityPolicy, formats []models.FormatValue) Result {
	if policy.IsAudioOnly() {
		return Miss
	}

	height := policy.Resolution.Height()
	canSwitchCodecs := policy.Fallback.CanFallback() && policy.Fallback != models.FallbackRequireCodec

	var videoOnly []models.FormatValue
	for _, f := range formats {
		if !f.IsVideoOnly() {
			continue
		}
		if f.Height <= 0 {
			continue
		}
		if f.IsUpscaled() {
			continue
		}
		videoOnly = append(videoOnly, f)
	}
	if len(videoOnly) == 0 {
		return Miss
	}

	resMatch := func(f models.FormatValue) bool { return f.Height == height }
	codecMatch := func(f models.FormatValue) bool { return string(f.VCodec) == string(policy.VideoCodec) }

	var candidates []models.FormatValue
	for _, f := range videoOnly {
		accept := resMatch(f) && (canSwitchCodecs || codecMatch(f))
		if policy.Fallback == models.FallbackRequireCodec {
			accept = resMatch(f) && codecMatch(f)
		}
		if accept {
			candidates = append(candidates, f)
		}
	}

	if len(candidates) == 0 {
		if !policy.Fallback.CanFallback() {
			return Miss
		}
		for _, f := range videoOnly {
			if f.Height >= MinHeight && f.Height <= height {
				candidates = append(candidates, f)
			}
		}
	}
	if len(candidates) == 0 {
		return Miss
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Height != b.Height {
			return a.Height > b.Height
		}
		aCodec, bCodec := codecMatch(a), codecMatch(b)
		if aCodec != bCodec {
			return aCodec
		}
		return a.VBR > b.VBR
	})

	fpsOK := func(f models.FormatValue) bool { return !policy.Prefer60FPS || f.Is60FPS }
	hdrOK := func(f models.FormatValue) bool { return !policy.PreferHDR || f.IsHDR }

	ladder := []struct {
		exact bool
		ok    func(models.FormatValue) bool
	}{
		// 1. exact resolution + codec + hdr-bit + fps-bit
		{true, func(f models.FormatValue) bool { return resMatch(f) && codecMatch(f) && hdrOK(f) && fpsOK(f) }},
		// 2. drop codec (only if can_switch_codecs) but keep resolution/hdr/fps
		{false, func(f models.FormatValue) bool { return canSwitchCodecs && resMatch(f) && hdrOK(f) && fpsOK(f) }},
		// 3. drop resolution but keep codec/hdr/fps
		{false, func(f models.FormatValue) bool { return codecMatch(f) && hdrOK(f) && fpsOK(f) }},
		// 4. weaken one of {hdr, fps}
		{false, func(f models.FormatValue) bool {
			return resMatch(f) && codecMatch(f) && (hdrOK(f) || fpsOK(f))
		}},
		// 5. resolution + codec only
		{false, func(f models.FormatValue) bool { return resMatch(f) && codecMatch(f) }},
		// 6. codec only
		{false, codecMatch},
		// 7. resolution only (if can_switch_codecs)
		{false, func(f models.FormatValue) bool { return canSwitchCodecs && resMatch(f) }},
		// 8. highest-resolution fallback candidate
		{false, func(models.FormatValue) bool { return true }},
	}

	var exactMatch *models.FormatValue
	var bestMatch *models.FormatValue
	for _, step := range ladder {
		for i := range candidates {
			f := candidates[i]
			if step.ok(f) {
				if step.exact {
					exactMatch = &f
				} else {
					bestMatch = &f
				}
				break
			}
		}
		if exactMatch != nil || bestMatch != nil {
			break
		}
	}

	if exactMatch != nil {
		return Result{Found: true, Exact: true, ID: exactMatch.ID}
	}
	if bestMatch == nil {
		return Miss
	}
	if !acceptFallback(policy, *bestMatch) {
		return Miss
	}
	return Result{Found: true, Exact: false, ID: bestMatch.ID}
}

// acceptFallback applies the fallback-mode gate in spec.md §4.3: NEXT_BEST
// accepts any non-exact match; REQUIRE_HD accepts only height >= HDCutoff;
// REQUIRE_CODEC accepts only when vcodec equals the policy vcodec; FAIL
// rejects all non-exact matches.
func acceptFallback(policy models.QualityPolicy, f models.FormatValue) bool {
	switch policy.Fallback {
	case models.FallbackFail:
		return false
	case models.FallbackNextBest:
		return true
	case models.FallbackRequireHD:
		return f.Height >= HDCutoff
	case models.FallbackRequireCodec:
		return string(f.VCodec) == string(policy.VideoCodec)
	default:
		return false
	}
}

// Selection is the Downloader's final format-selector string and whether
// it was an exact or fallback match.
type Selection struct {
	Selector string
	Exact    bool
}

// Select runs the three sub-functions and composes the download format
// selector per spec.md §4.3: "<video_id>+<audio_id>" when video and audio
// are chosen separately, else the combined id or audio-only id.
func Select(policy models.QualityPolicy, formats []models.FormatValue) (Selection, bool) {
	if combined := BestCombined(policy, formats); combined.Found {
		return Selection{Selector: combined.ID, Exact: combined.Exact}, true
	}

	if policy.IsAudioOnly() {
		audio := BestAudio(policy, formats)
		if !audio.Found {
			return Selection{}, false
		}
		return Selection{Selector: audio.ID, Exact: audio.Exact}, true
	}

	video := BestVideo(policy, formats)
	audio := BestAudio(policy, formats)
	if !video.Found || !audio.Found {
		return Selection{}, false
	}
	exact := video.Exact && audio.Exact
	return Selection{Selector: video.ID + "+" + audio.ID, Exact: exact}, true
}
