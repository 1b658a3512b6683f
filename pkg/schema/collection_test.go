package schema

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceholder(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.FixedZone("CET", 3600))
	p := Placeholder(3, now)

	assert.Equal(t, 3, p.ID)
	assert.Equal(t, "New Client 3", p.Client)
	assert.Equal(t, "New Title 3", p.Title)
	assert.Equal(t, []string{"Default"}, p.Tags)
	require.Len(t, p.Keypoints, 1)
	assert.Equal(t, "New Keypoint 1 - 3", p.Keypoints[0].Title)
	assert.Equal(t, "2024-03-09 14:05:07 UTC", p.LastModified)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"text_fields":[]`)
}

func TestReindex(t *testing.T) {
	collections := []Collection{{ID: 4}, {ID: 4}, {ID: 0}}
	assert.False(t, Dense(collections))

	Reindex(collections)
	assert.True(t, Dense(collections))
	for i, c := range collections {
		assert.Equal(t, i, c.ID)
	}
	assert.True(t, Dense(nil))
}

func TestNormalize(t *testing.T) {
	collections := []Collection{
		{ID: 0, Title: "partial", Keypoints: []Keypoint{{ID: 1, Title: "kp"}}},
		{ID: 1, Tags: []string{"kept"}},
	}
	Normalize(collections)

	data, err := json.Marshal(collections)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "null")
	assert.Equal(t, []string{"kept"}, collections[1].Tags)
	assert.Equal(t, []string{}, collections[0].Keypoints[0].Featured)
}
