package pathname

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tubevault/tubevault/internal/models"
)

// OrderableMedia is the minimal view of a Media needed to compute
// video_order (spec.md §4.4).
type OrderableMedia struct {
	ID          uuid.UUID
	RemoteKey   string
	PublishedAt *time.Time
	CreatedAt   time.Time
}

func sortKey(m OrderableMedia) (time.Time, time.Time, string) {
	pub := m.CreatedAt
	if m.PublishedAt != nil {
		pub = *m.PublishedAt
	}
	return pub, m.CreatedAt, m.RemoteKey
}

// VideoOrder computes the two-digit zero-padded 1-based ordinal of target
// among siblings, sorted by (published_at, created_at, remote_key).
// Playlists (kind == PLAYLIST) sort across the whole set; channels
// restrict the sibling set to items published in the same calendar year as
// target (spec.md §4.4).
func VideoOrder(kind models.SourceKind, siblings []OrderableMedia, target OrderableMedia) string {
	set := siblings
	if kind != models.KindPlaylist {
		year := target.CreatedAt.Year()
		if target.PublishedAt != nil {
			year = target.PublishedAt.Year()
		}
		filtered := make([]OrderableMedia, 0, len(siblings))
		for _, s := range siblings {
			y := s.CreatedAt.Year()
			if s.PublishedAt != nil {
				y = s.PublishedAt.Year()
			}
			if y == year {
				filtered = append(filtered, s)
			}
		}
		set = filtered
	}

	sort.SliceStable(set, func(i, j int) bool {
		pi, ci, ri := sortKey(set[i])
		pj, cj, rj := sortKey(set[j])
		if !pi.Equal(pj) {
			return pi.Before(pj)
		}
		if !ci.Equal(cj) {
			return ci.Before(cj)
		}
		return ri < rj
	})

	position := 1
	for i, s := range set {
		if s.ID == target.ID {
			position = i + 1
			break
		}
	}
	return fmt.Sprintf("%02d", position)
}
