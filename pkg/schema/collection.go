// Package schema defines the catalogue records shared by the folio server, SDK and CLI.
package schema

import (
	"fmt"
	"time"
)

// TimestampLayout is the layout used for LastModified.
// The suffix is a literal "UTC" regardless of the clock's zone.
const TimestampLayout = "2006-01-02 15:04:05 UTC"

// Collection is a single catalogue entry (a portfolio project).
// ID always equals the record's position in the persisted sequence.
type Collection struct {
	ID           int         `json:"id"`
	Client       string      `json:"client"`
	ClientLogo   string      `json:"client_logo"`
	AccentColor  string      `json:"accent_color"`
	Title        string      `json:"title"`
	Tags         []string    `json:"tags"`
	Featured     string      `json:"featured"`
	Keypoints    []Keypoint  `json:"keypoints"`
	Summary      string      `json:"summary"`
	TextFields   []TextField `json:"text_fields"`
	LastModified string      `json:"last_modified"`
}

// Keypoint is a highlight inside a Collection. Its ID is scoped to the parent.
type Keypoint struct {
	ID       int      `json:"id"`
	Featured []string `json:"featured"`
	Title    string   `json:"title"`
	Summary  string   `json:"summary"`
}

// TextField is a free-form named value rendered alongside a Collection.
type TextField struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Placeholder builds the default record used to seed an empty catalogue.
func Placeholder(id int, now time.Time) Collection {
	return Collection{
		ID:          id,
		Client:      fmt.Sprintf("New Client %d", id),
		ClientLogo:  "n/a",
		AccentColor: "#cacaca",
		Title:       fmt.Sprintf("New Title %d", id),
		Tags:        []string{"Default"},
		Featured:    "n/a",
		Keypoints: []Keypoint{{
			ID:       0,
			Featured: []string{"n/a"},
			Title:    fmt.Sprintf("New Keypoint 1 - %d", id),
			Summary:  fmt.Sprintf("New Summary 1 - %d", id),
		}},
		Summary:      fmt.Sprintf("New Summary %d", id),
		TextFields:   []TextField{},
		LastModified: now.Format(TimestampLayout),
	}
}

// Reindex rewrites every record's ID to its position, restoring the dense-id invariant.
func Reindex(collections []Collection) {
	for i := range collections {
		collections[i].ID = i
	}
}

// Normalize replaces nil sequences with empty ones, in place, so every stored
// record serializes tags, keypoints and text_fields as arrays rather than null.
func Normalize(collections []Collection) {
	for i := range collections {
		c := &collections[i]
		if c.Tags == nil {
			c.Tags = []string{}
		}
		if c.Keypoints == nil {
			c.Keypoints = []Keypoint{}
		}
		if c.TextFields == nil {
			c.TextFields = []TextField{}
		}
		for j := range c.Keypoints {
			if c.Keypoints[j].Featured == nil {
				c.Keypoints[j].Featured = []string{}
			}
		}
	}
}

// Dense reports whether ids are exactly 0..len-1 in order.
func Dense(collections []Collection) bool {
	for i, c := range collections {
		if c.ID != i {
			return false
		}
	}
	return true
}
