// Package models defines the persistent entities of the sync core: Source,
// Media, Metadata and Format, plus the enums that parameterize a Source's
// quality policy and filename template.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// SourceKind identifies what a Source points at on the remote site.
type SourceKind string

const (
	KindChannelNamed SourceKind = "CHANNEL_NAMED"
	KindChannelByID  SourceKind = "CHANNEL_BY_ID"
	KindPlaylist     SourceKind = "PLAYLIST"
)

// Resolution is the policy's target vertical resolution, or AUDIO for
// audio-only sources.
type Resolution string

const (
	ResolutionAudio Resolution = "AUDIO"
	Resolution360   Resolution = "360p"
	Resolution480   Resolution = "480p"
	Resolution720   Resolution = "720p"
	Resolution1080  Resolution = "1080p"
	Resolution1440  Resolution = "1440p"
	Resolution2160  Resolution = "2160p"
	Resolution4320  Resolution = "4320p"
)

// Height returns the numeric pixel height a Resolution denotes, or 0 for
// ResolutionAudio.
func (r Resolution) Height() int {
	switch r {
	case Resolution360:
		return 360
	case Resolution480:
		return 480
	case Resolution720:
		return 720
	case Resolution1080:
		return 1080
	case Resolution1440:
		return 1440
	case Resolution2160:
		return 2160
	case Resolution4320:
		return 4320
	default:
		return 0
	}
}

type VideoCodec string

const (
	CodecAV1  VideoCodec = "AV1"
	CodecVP9  VideoCodec = "VP9"
	CodecAVC1 VideoCodec = "AVC1"
)

type AudioCodec string

const (
	CodecOPUS AudioCodec = "OPUS"
	CodecMP4A AudioCodec = "MP4A"
)

// Fallback is the rule for accepting non-exact Format Matcher results.
type Fallback string

const (
	FallbackFail         Fallback = "FAIL"
	FallbackNextBest     Fallback = "NEXT_BEST"
	FallbackRequireHD    Fallback = "REQUIRE_HD"
	FallbackRequireCodec Fallback = "REQUIRE_CODEC"
)

// CanFallback reports whether non-exact matches may ever be returned.
func (f Fallback) CanFallback() bool {
	return f != FallbackFail
}

// QualityPolicy is the per-Source tuple the Format Matcher consumes.
type QualityPolicy struct {
	Resolution  Resolution `json:"resolution" validate:"required"`
	VideoCodec  VideoCodec `json:"video_codec"`
	AudioCodec  AudioCodec `json:"audio_codec" validate:"required"`
	Prefer60FPS bool       `json:"prefer_60fps"`
	PreferHDR   bool       `json:"prefer_hdr"`
	Fallback    Fallback   `json:"fallback" validate:"required"`
}

// IsAudioOnly reports whether the policy targets an audio-only download.
func (p QualityPolicy) IsAudioOnly() bool {
	return p.Resolution == ResolutionAudio
}

// SidecarFlags controls which sidecar artifacts the Downloader writes.
type SidecarFlags struct {
	CopyThumbnails bool     `json:"copy_thumbnails"`
	WriteNFO       bool     `json:"write_nfo"`
	WriteJSON      bool     `json:"write_json"`
	EmbedMetadata  bool     `json:"embed_metadata"`
	EmbedThumbnail bool     `json:"embed_thumbnail"`
	WriteSubtitles bool     `json:"write_subtitles"`
	AutoSubtitles  bool     `json:"auto_subtitles"`
	SubLangs       []string `json:"sub_langs"`
}

// DurationFilter optionally bounds Media by content duration in seconds.
type DurationFilter struct {
	Seconds int  `json:"seconds"`
	Min     bool `json:"min"`
	Max     bool `json:"max"`
}

// Source is a remote channel or playlist tracked by the service.
type Source struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	Kind          SourceKind `json:"kind" db:"kind"`
	Key           string     `json:"key" db:"key" validate:"required"`
	DisplayName   string     `json:"display_name" db:"display_name" validate:"required"`
	Directory     string     `json:"directory" db:"directory" validate:"required"`
	MediaTemplate string     `json:"media_template" db:"media_template" validate:"required"`

	QualityPolicy QualityPolicy `json:"quality_policy" db:"quality_policy"`

	IndexCadence   time.Duration `json:"index_cadence" db:"index_cadence"`
	TargetSchedule time.Time     `json:"target_schedule" db:"target_schedule"`

	DownloadEnabled bool `json:"download_enabled" db:"download_enabled"`
	IndexVideos     bool `json:"index_videos" db:"index_videos"`
	IndexStreams    bool `json:"index_streams" db:"index_streams"`

	DownloadCap time.Duration `json:"download_cap" db:"download_cap"`

	DeleteOld  bool `json:"delete_old" db:"delete_old"`
	DaysToKeep int  `json:"days_to_keep" db:"days_to_keep"`

	FilterRegex  string `json:"filter_regex" db:"filter_regex"`
	FilterInvert bool   `json:"filter_invert" db:"filter_invert"`

	DurationFilter DurationFilter `json:"duration_filter" db:"duration_filter"`

	DeleteRemovedOnDisk     bool `json:"delete_removed_on_disk" db:"delete_removed_on_disk"`
	DeleteRemovedFromSource bool `json:"delete_removed_from_source" db:"delete_removed_from_source"`

	Sidecars SidecarFlags `json:"sidecars" db:"sidecars"`

	SponsorblockEnabled    bool           `json:"sponsorblock_enabled" db:"sponsorblock_enabled"`
	SponsorblockCategories pq.StringArray `json:"sponsorblock_categories" db:"sponsorblock_categories"`

	HasFailed   bool       `json:"has_failed" db:"has_failed"`
	LastCrawlAt *time.Time `json:"last_crawl_at" db:"last_crawl_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`

	// Detached marks a Source in the two-phase deletion pipeline: the
	// Source row itself has been renamed off its unique key, display_name
	// and directory and keeps its own Media rows (no separate
	// "to-be-deleted" Source is created and no Media are reparented),
	// pending an async purge once a ".to_be_removed" sentinel authorizes
	// recursive removal of its directory.
	Detached bool `json:"detached" db:"detached"`
}

// ExampleMediaFormatDict returns the placeholder values used to validate a
// MediaTemplate renders to a non-empty string before it is accepted.
func (s *Source) ExampleMediaFormatDict() map[string]string {
	return map[string]string{
		"yyyymmdd":       "20060102",
		"yyyy_mm_dd":     "2006-01-02",
		"yyyy":           "2006",
		"mm":             "01",
		"dd":             "02",
		"source":         s.DisplayName,
		"source_full":    s.DisplayName,
		"uploader":       "example-uploader",
		"title":          "example title",
		"title_full":     "example title",
		"key":            "abc123",
		"format":         "1080p",
		"playlist_title": s.DisplayName,
		"video_order":    "01",
		"ext":            "mkv",
		"resolution":     "1080p",
		"height":         "1080",
		"width":          "1920",
		"vcodec":         "VP9",
		"acodec":         "OPUS",
		"fps":            "30",
		"hdr":            "0",
	}
}

// Media is a single remote item linked to a Source.
type Media struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	SourceID    uuid.UUID  `json:"source_id" db:"source_id"`
	RemoteKey   string     `json:"remote_key" db:"remote_key"`
	PublishedAt *time.Time `json:"published_at" db:"published_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`

	Title    string        `json:"title" db:"title"`
	Duration time.Duration `json:"duration" db:"duration"`

	ThumbnailPath string `json:"thumbnail_path" db:"thumbnail_path"`
	ThumbnailW    int    `json:"thumbnail_width" db:"thumbnail_width"`
	ThumbnailH    int    `json:"thumbnail_height" db:"thumbnail_height"`

	CanDownload bool   `json:"can_download" db:"can_download"`
	Skip        bool   `json:"skip" db:"skip"`
	ManualSkip  bool   `json:"manual_skip" db:"manual_skip"`
	SkipReason  string `json:"skip_reason" db:"skip_reason"`

	// PremiereAt holds the estimated live-at time while Media is skipped
	// for ErrPremiere; the hourly promoter clears it once the time passes.
	PremiereAt *time.Time `json:"premiere_at" db:"premiere_at"`

	Downloaded          bool       `json:"downloaded" db:"downloaded"`
	DownloadDate        *time.Time `json:"download_date" db:"download_date"`
	DownloadedFormat    string     `json:"downloaded_format" db:"downloaded_format"`
	DownloadedHeight    int        `json:"downloaded_height" db:"downloaded_height"`
	DownloadedWidth     int        `json:"downloaded_width" db:"downloaded_width"`
	DownloadedVCodec    string     `json:"downloaded_vcodec" db:"downloaded_vcodec"`
	DownloadedACodec    string     `json:"downloaded_acodec" db:"downloaded_acodec"`
	DownloadedContainer string     `json:"downloaded_container" db:"downloaded_container"`
	DownloadedFPS       int        `json:"downloaded_fps" db:"downloaded_fps"`
	DownloadedHDR       bool       `json:"downloaded_hdr" db:"downloaded_hdr"`
	DownloadedFilesize  int64      `json:"downloaded_filesize" db:"downloaded_filesize"`

	MediaFile string `json:"media_file" db:"media_file"`
}

// NeedsReconcile reports whether the on-disk file no longer matches the
// recorded size or is missing entirely, per the universal invariant in
// spec.md §8: such a mismatch must clear Downloaded and assert ManualSkip
// on the next save.
func (m *Media) NeedsReconcile(actualSize int64, exists bool) bool {
	if !m.Downloaded {
		return false
	}
	return !exists || actualSize != m.DownloadedFilesize
}

// Metadata is the normalized extractor JSON blob for a Media, or for a
// Source during the brief window before a Media row exists (indexing).
type Metadata struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	MediaID     *uuid.UUID    `json:"media_id" db:"media_id"`
	SourceID    *uuid.UUID    `json:"source_id" db:"source_id"`
	Site        string        `json:"site" db:"site"`
	Key         string        `json:"key" db:"key"`
	RetrievedAt time.Time     `json:"retrieved_at" db:"retrieved_at"`
	UploadedAt  *time.Time    `json:"uploaded_at" db:"uploaded_at"`
	PublishedAt *time.Time    `json:"published_at" db:"published_at"`
	Value       MetadataValue `json:"value" db:"value"`
}

// MetadataValue is the fixed set of normalized fields read downstream
// instead of re-parsing the raw extractor blob (spec.md §9).
type MetadataValue struct {
	Title        string   `json:"title"`
	FullTitle    string   `json:"fulltitle"`
	Description  string   `json:"description"`
	DurationSecs int      `json:"duration"`
	Thumbnail    string   `json:"thumbnail"`
	Thumbnails   []string `json:"thumbnails"`
	Categories   []string `json:"categories"`
	AgeLimit     int      `json:"age_limit"`
	Uploader     string   `json:"uploader"`
	LikeCount    int64    `json:"like_count"`
	DislikeCount int64    `json:"dislike_count"`
	Epoch        int64    `json:"epoch"`
	Availability string   `json:"availability"`
	ExtractorKey string   `json:"extractor_key"`
}

// Format is one downloadable variant attached to a Metadata row.
type Format struct {
	ID         uuid.UUID   `json:"id" db:"id"`
	MetadataID uuid.UUID   `json:"metadata_id" db:"metadata_id"`
	Site       string      `json:"site" db:"site"`
	Key        string      `json:"key" db:"key"`
	Number     int         `json:"number" db:"number"`
	Value      FormatValue `json:"value" db:"value"`
}

// FormatValue is the normalized per-format field set the Format Matcher
// consumes; codec names are upper-cased with trailing digit-runs stripped
// (e.g. "vp9.2" -> "VP9") before being stored here.
type FormatValue struct {
	ID           string  `json:"id"`
	FormatNote   string  `json:"format_note"`
	Height       int     `json:"height"`
	Width        int     `json:"width"`
	VCodec       string  `json:"vcodec"`
	ACodec       string  `json:"acodec"`
	FPS          float64 `json:"fps"`
	VBR          float64 `json:"vbr"`
	ABR          float64 `json:"abr"`
	Is60FPS      bool    `json:"is_60fps"`
	IsHDR        bool    `json:"is_hdr"`
	LanguageCode string  `json:"language_code"`
}

// IsVideoOnly reports whether the format carries a video stream and no
// audio stream.
func (f FormatValue) IsVideoOnly() bool {
	return f.VCodec != "" && f.ACodec == ""
}

// IsAudioOnly reports whether the format carries an audio stream and no
// video stream.
func (f FormatValue) IsAudioOnly() bool {
	return f.ACodec != "" && f.VCodec == ""
}

// IsCombined reports whether the format carries both a video and an audio
// stream.
func (f FormatValue) IsCombined() bool {
	return f.VCodec != "" && f.ACodec != ""
}

// IsUpscaled reports whether the format id identifies an AI "super
// resolution" upscale, which must never be selected (spec.md §8).
func (f FormatValue) IsUpscaled() bool {
	return hasSRSuffix(f.ID)
}

func hasSRSuffix(id string) bool {
	for i := 0; i+3 <= len(id); i++ {
		if id[i] == '-' && id[i+1] == 's' && id[i+2] == 'r' {
			return true
		}
	}
	return false
}

// TaskHistoryStatus mirrors the Scheduler's task lifecycle states.
type TaskHistoryStatus string

const (
	TaskScheduled       TaskHistoryStatus = "scheduled"
	TaskRunning         TaskHistoryStatus = "running"
	TaskSucceeded       TaskHistoryStatus = "succeeded"
	TaskFailedRetryable TaskHistoryStatus = "failed-retryable"
	TaskFailedPermanent TaskHistoryStatus = "failed-permanent"
	TaskRevoked         TaskHistoryStatus = "revoked"
)

// TaskHistory records one terminal or in-flight task execution for
// UI/observability consumption.
type TaskHistory struct {
	ID          uuid.UUID         `json:"id" db:"id"`
	TaskID      string            `json:"task_id" db:"task_id"`
	TaskType    string            `json:"task_type" db:"task_type"`
	VerboseName string            `json:"verbose_name" db:"verbose_name"`
	Status      TaskHistoryStatus `json:"status" db:"status"`
	Attempts    int               `json:"attempts" db:"attempts"`
	LastError   string            `json:"last_error" db:"last_error"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at" db:"updated_at"`
}

// MediaServerKind is the protocol family a configured media server speaks.
type MediaServerKind string

const (
	MediaServerTypeA MediaServerKind = "TYPE_A" // header-token auth, JSON listing, 204 refresh
	MediaServerTypeB MediaServerKind = "TYPE_B" // query-token auth, XML listing, 200 refresh
)

// MediaServer is a configured external media library server to notify
// after successful downloads.
type MediaServer struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Kind        MediaServerKind `json:"kind" db:"kind"`
	URL         string          `json:"url" db:"url"`
	Token       string          `json:"token" db:"token"`
	VerifyHTTPS bool            `json:"verify_https" db:"verify_https"`
	LibraryIDs  pq.StringArray  `json:"library_ids" db:"library_ids"`
}
