package rag

import (
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
)

func TestSimilarityFromScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		distance qdrant.Distance
		score    float32
		want     float64
		ok       bool
	}{
		{qdrant.Distance_Cosine, 0.75, 0.75, true},
		{qdrant.Distance_Dot, 0.5, 0.5, true},
		{qdrant.Distance_Euclid, 0.25, 0.75, true},
		{qdrant.Distance_Manhattan, 0.5, 0.5, true},
		{qdrant.Distance_UnknownDistance, 0.9, 0, false},
	}
	for _, tt := range tests {
		got, ok := similarityFromScore(tt.distance, tt.score)
		assert.Equal(t, tt.ok, ok, tt.distance.String())
		assert.InDelta(t, tt.want, got, 1e-6, tt.distance.String())
	}
}

func TestChunkFromPoint(t *testing.T) {
	t.Parallel()

	uploaded := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	payload := qdrant.NewValueMap(map[string]any{
		payloadText:       "hello",
		payloadFileName:   "notes.txt",
		payloadChunkIndex: int64(3),
		payloadUploadDate: uploaded.Format(time.RFC3339Nano),
		payloadFileType:   "txt",
	})

	c := chunkFromPoint(qdrant.NewIDUUID("5c56c793-69f3-4fbf-87e6-c4bf54c28c26"), payload, nil)

	assert.Equal(t, "5c56c793-69f3-4fbf-87e6-c4bf54c28c26", c.ID)
	assert.Equal(t, "hello", c.Text)
	assert.Equal(t, Metadata{FileName: "notes.txt", ChunkIndex: 3, UploadDate: uploaded, FileType: "txt"}, c.Metadata)
	assert.Nil(t, c.Embedding)
}

func TestFileFilter(t *testing.T) {
	t.Parallel()

	f := fileFilter("a.txt")
	if assert.Len(t, f.GetMust(), 1) {
		field := f.GetMust()[0].GetField()
		assert.Equal(t, payloadFileName, field.GetKey())
		assert.Equal(t, "a.txt", field.GetMatch().GetKeyword())
	}
}

func TestSupersededFilter(t *testing.T) {
	t.Parallel()

	keep := []Chunk{{ID: "5c56c793-69f3-4fbf-87e6-c4bf54c28c26"}, {ID: "0f8e8c4e-2f43-4a3b-9b5e-0c1f5d8b6a11"}}
	f := supersededFilter([]string{"a.txt", "b.md"}, keep)

	if assert.Len(t, f.GetMust(), 1) {
		field := f.GetMust()[0].GetField()
		assert.Equal(t, payloadFileName, field.GetKey())
		assert.Equal(t, []string{"a.txt", "b.md"}, field.GetMatch().GetKeywords().GetStrings())
	}
	if assert.Len(t, f.GetMustNot(), 1) {
		ids := f.GetMustNot()[0].GetHasId().GetHasId()
		if assert.Len(t, ids, 2) {
			assert.Equal(t, keep[0].ID, ids[0].GetUuid())
			assert.Equal(t, keep[1].ID, ids[1].GetUuid())
		}
	}

	assert.Empty(t, supersededFilter([]string{"a.txt"}, nil).GetMustNot(), "an empty replacement removes every old point")
}
