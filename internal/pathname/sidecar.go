package pathname

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"

	"github.com/google/renameio/v2"
)

// writeAtomic durably writes data to path using a pending-file-then-
// atomic-rename sequence, so a crash mid-write never leaves a torn sidecar
// file. Grounded on ManuGH-xg2g's renameio usage.
func writeAtomic(path string, write func(w io.Writer) error) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("pathname: create pending file for %s: %w", path, err)
	}
	defer pending.Cleanup()

	if err := write(pending); err != nil {
		return fmt.Errorf("pathname: write %s: %w", path, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("pathname: replace %s: %w", path, err)
	}
	return nil
}

// NFO is the rendered XML document for a Media's sidecar `.nfo` file
// (spec.md §4.4's <episodedetails> shape).
type NFO struct {
	XMLName   xml.Name `xml:"episodedetails"`
	Title     string   `xml:"title"`
	ShowTitle string   `xml:"showtitle"`
	Season    int      `xml:"season"`
	Episode   int      `xml:"episode"`
	Rating    float64  `xml:"rating,omitempty"`
	Votes     int      `xml:"votes,omitempty"`
	Plot      string   `xml:"plot"`
	Thumb     string   `xml:"thumb"`
	MPAA      string   `xml:"mpaa,omitempty"`
	Runtime   int      `xml:"runtime"`
	ID        string   `xml:"id"`
	UniqueID  string   `xml:"uniqueid"`
	Studio    string   `xml:"studio"`
	Aired     string   `xml:"aired"`
	DateAdded string   `xml:"dateadded"`
	Genre     []string `xml:"genre"`
}

// WriteNFO renders nfo as prettified XML and writes it atomically to path.
func WriteNFO(path string, nfo NFO) error {
	return writeAtomic(path, func(w io.Writer) error {
		if _, err := w.Write([]byte(xml.Header)); err != nil {
			return err
		}
		enc := xml.NewEncoder(w)
		enc.Indent("", "  ")
		return enc.Encode(nfo)
	})
}

// WriteJSONSidecar dumps value (the extractor's normalized output with
// formats inlined) as a prettified JSON file at path.
func WriteJSONSidecar(path string, value interface{}) error {
	return writeAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	})
}

// CopyThumbnail atomically copies the thumbnail bytes at srcPath to
// destPath (a JPEG sidecar).
func CopyThumbnail(srcPath, destPath string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("pathname: read thumbnail %s: %w", srcPath, err)
	}
	return writeAtomic(destPath, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}
