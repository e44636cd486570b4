// Package pathname implements the Path/Name Engine (spec.md §4.4):
// template rendering/validation, slugification, directory-safety
// canonicalization, and atomic rename/relocate of a Media's video plus
// sidecars.
package pathname

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Variables recognized by the template renderer (spec.md §4.4).
var knownVariables = map[string]bool{
	"yyyymmdd": true, "yyyy_mm_dd": true, "yyyy": true, "mm": true, "dd": true,
	"source": true, "source_full": true, "uploader": true, "title": true,
	"title_full": true, "key": true, "format": true, "playlist_title": true,
	"video_order": true, "ext": true, "resolution": true, "height": true,
	"width": true, "vcodec": true, "acodec": true, "fps": true, "hdr": true,
}

// slugifiedVariables are lowercased, non-alphanumerics replaced, and
// length-capped at 80 (spec.md §4.4). "_full" variants are only cleaned of
// filesystem-forbidden characters and control bytes.
var slugifiedVariables = map[string]bool{"source": true, "title": true}

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z_]+)\}`)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases s, replaces runs of non-alphanumeric characters with
// a single "-", trims leading/trailing "-", and caps the result at 80
// characters (spec.md §4.4).
func Slugify(s string) string {
	lowered := strings.ToLower(s)
	slug := nonSlugChars.ReplaceAllString(lowered, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 80 {
		slug = strings.TrimRight(slug[:80], "-")
	}
	if slug == "" {
		slug = "untitled"
	}
	return slug
}

// forbiddenChars matches filesystem-forbidden characters and control
// bytes, stripped from "_full" template variables without slugification.
var forbiddenChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// CleanFull removes filesystem-forbidden characters and control bytes
// without otherwise altering case or spacing (spec.md §4.4's "_full"
// variant rule).
func CleanFull(s string) string {
	return strings.TrimSpace(forbiddenChars.ReplaceAllString(s, ""))
}

// ErrUnknownPlaceholder is returned when a template references a variable
// not in the known set.
type ErrUnknownPlaceholder struct {
	Name string
}

func (e *ErrUnknownPlaceholder) Error() string {
	return fmt.Sprintf("pathname: unknown template placeholder %q", e.Name)
}

// Render substitutes every `{var}` placeholder in tmpl using vars. Unknown
// placeholders are a hard error (spec.md §4.4).
func Render(tmpl string, vars map[string]string) (string, error) {
	var outerErr error
	result := placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := match[1 : len(match)-1]
		if !knownVariables[name] {
			if outerErr == nil {
				outerErr = &ErrUnknownPlaceholder{Name: name}
			}
			return match
		}
		value, ok := vars[name]
		if !ok {
			return ""
		}
		if slugifiedVariables[name] {
			return Slugify(value)
		}
		if strings.HasSuffix(name, "_full") {
			return CleanFull(value)
		}
		return value
	})
	if outerErr != nil {
		return "", outerErr
	}
	return result, nil
}

// ValidateTemplate renders tmpl against example and rejects it unless the
// result is non-empty (spec.md §4.4).
func ValidateTemplate(tmpl string, example map[string]string) error {
	rendered, err := Render(tmpl, example)
	if err != nil {
		return err
	}
	if strings.TrimSpace(rendered) == "" {
		return fmt.Errorf("pathname: template %q renders to an empty string", tmpl)
	}
	return nil
}

// ErrOutsideRoot is returned when a rendered path would escape the
// configured download root.
var ErrOutsideRoot = fmt.Errorf("pathname: rendered path escapes the download root")

// ResolveWithinRoot joins root, sourceDir and relPath and verifies the
// canonicalized result stays inside root (spec.md §4.4 "Directory
// safety").
func ResolveWithinRoot(root, sourceDir, relPath string) (string, error) {
	joined := filepath.Join(root, sourceDir, relPath)
	cleanRoot := filepath.Clean(root)
	cleanJoined := filepath.Clean(joined)
	if cleanJoined != cleanRoot && !strings.HasPrefix(cleanJoined, cleanRoot+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return cleanJoined, nil
}
