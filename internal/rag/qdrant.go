package rag

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// Payload keys stored with every Qdrant point.
const (
	payloadText       = "text"
	payloadFileName   = "fileName"
	payloadChunkIndex = "chunkIndex"
	payloadUploadDate = "uploadDate"
	payloadFileType   = "fileType"
)

// scrollPageSize is the number of points fetched per Scroll call.
const scrollPageSize = 256

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name (default: documents).
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant collection. Search
// runs remotely; the collection's distance metric is translated to a
// higher-is-closer similarity before results leave this type.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig

	// distance is the metric the collection was created with.
	distance qdrant.Distance

	log *slog.Logger
}

// NewQdrantStore connects to Qdrant, creates the collection and its fileName
// index when missing, and records the collection's distance metric.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig, log *slog.Logger) (*QdrantStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("qdrant: config must not be nil")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "documents"
	}
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("qdrant: vector size must be set")
	}
	if log == nil {
		log = slog.Default()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg, distance: qdrant.Distance_Cosine, log: log}
	if err := store.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}

	return store, nil
}

// Client exposes the underlying client for health checks.
func (s *QdrantStore) Client() *qdrant.Client { return s.client }

// ensureCollection creates the collection if it does not already exist and
// reads back the metric of an existing one.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}

	if exists {
		info, err := s.client.GetCollectionInfo(ctx, s.cfg.Collection)
		if err != nil {
			return fmt.Errorf("qdrant: failed to read collection %q: %w", s.cfg.Collection, err)
		}
		params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
		if params != nil {
			s.distance = params.GetDistance()
			if size := params.GetSize(); size != 0 && size != s.cfg.VectorSize {
				return fmt.Errorf("qdrant: collection %q has vector size %d, embedder produces %d: %w",
					s.cfg.Collection, size, s.cfg.VectorSize, ErrDimensionMismatch)
			}
		}
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}
	s.distance = qdrant.Distance_Cosine

	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		FieldName:      payloadFileName,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to index %s: %w", payloadFileName, err)
	}

	s.log.Info("qdrant: collection created",
		slog.String("collection", s.cfg.Collection),
		slog.Uint64("vector_size", s.cfg.VectorSize),
	)
	return nil
}

// AddChunks upserts chunks as points keyed by chunk ID and waits for the
// write to be applied.
func (s *QdrantStore) AddChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		if uint64(len(c.Embedding)) != s.cfg.VectorSize {
			return fmt.Errorf("qdrant: chunk %s: %w: %d != %d", c.ID, ErrDimensionMismatch, len(c.Embedding), s.cfg.VectorSize)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(c.ID),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadText:       c.Text,
				payloadFileName:   c.Metadata.FileName,
				payloadChunkIndex: int64(c.Metadata.ChunkIndex),
				payloadUploadDate: c.Metadata.UploadDate.UTC().Format(time.RFC3339Nano),
				payloadFileType:   c.Metadata.FileType,
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// AllChunks scrolls the whole collection. Qdrant does not keep insertion
// order, so chunks are ordered by upload date, file name and chunk index.
func (s *QdrantStore) AllChunks(ctx context.Context) ([]Chunk, error) {
	return s.scroll(ctx, nil)
}

// ChunksByFileName scrolls the points whose fileName matches.
func (s *QdrantStore) ChunksByFileName(ctx context.Context, fileName string) ([]Chunk, error) {
	return s.scroll(ctx, fileFilter(fileName))
}

// scroll pages through the points matching filter. Offsets are inclusive,
// so every page after the first starts with the previous page's last point.
func (s *QdrantStore) scroll(ctx context.Context, filter *qdrant.Filter) ([]Chunk, error) {
	var (
		out    []Chunk
		offset *qdrant.PointId
	)
	for {
		limit := uint32(scrollPageSize)
		if offset != nil {
			limit++
		}
		points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.cfg.Collection,
			Filter:         filter,
			Offset:         offset,
			Limit:          &limit,
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant: scroll failed: %w", err)
		}
		if offset != nil && len(points) > 0 {
			points = points[1:]
		}
		for _, p := range points {
			out = append(out, chunkFromPoint(p.GetId(), p.GetPayload(), p.GetVectors()))
		}
		if len(points) < scrollPageSize {
			break
		}
		offset = points[len(points)-1].GetId()
	}

	slices.SortStableFunc(out, func(a, b Chunk) int {
		return cmp.Or(
			a.Metadata.UploadDate.Compare(b.Metadata.UploadDate),
			cmp.Compare(a.Metadata.FileName, b.Metadata.FileName),
			cmp.Compare(a.Metadata.ChunkIndex, b.Metadata.ChunkIndex),
		)
	})
	if out == nil {
		out = []Chunk{}
	}
	return out, nil
}

// DeleteByFileName deletes the points whose fileName matches.
func (s *QdrantStore) DeleteByFileName(ctx context.Context, fileName string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(fileFilter(fileName)),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete %q failed: %w", fileName, err)
	}
	return nil
}

// ReplaceFiles upserts chunks first and only then deletes the points of
// fileNames that are not part of the new set, so a failed upsert leaves the
// previous version searchable.
func (s *QdrantStore) ReplaceFiles(ctx context.Context, fileNames []string, chunks []Chunk) error {
	if err := s.AddChunks(ctx, chunks); err != nil {
		return err
	}
	if len(fileNames) == 0 {
		return nil
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(supersededFilter(fileNames, chunks)),
	})
	if err != nil {
		return fmt.Errorf("qdrant: removing superseded points failed: %w", err)
	}
	return nil
}

// Clear drops and recreates the collection.
func (s *QdrantStore) Clear(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.cfg.Collection); err != nil {
		return fmt.Errorf("qdrant: failed to drop collection %q: %w", s.cfg.Collection, err)
	}
	return s.ensureCollection(ctx)
}

// Stats counts points exactly and collects distinct file names from a
// payload-only scroll.
func (s *QdrantStore) Stats(ctx context.Context) (Stats, error) {
	total, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return Stats{}, fmt.Errorf("qdrant: count failed: %w", err)
	}

	files := make(map[string]struct{})
	var offset *qdrant.PointId
	for {
		limit := uint32(scrollPageSize)
		if offset != nil {
			limit++
		}
		points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.cfg.Collection,
			Offset:         offset,
			Limit:          &limit,
			WithPayload:    qdrant.NewWithPayloadInclude(payloadFileName),
		})
		if err != nil {
			return Stats{}, fmt.Errorf("qdrant: scroll failed: %w", err)
		}
		if offset != nil && len(points) > 0 {
			points = points[1:]
		}
		for _, p := range points {
			files[p.GetPayload()[payloadFileName].GetStringValue()] = struct{}{}
		}
		if len(points) < scrollPageSize {
			break
		}
		offset = points[len(points)-1].GetId()
	}

	return Stats{TotalChunks: int(total), UniqueFiles: len(files)}, nil
}

// FindMostSimilar runs the nearest-neighbour query in Qdrant and converts
// each score to a similarity.
func (s *QdrantStore) FindMostSimilar(ctx context.Context, query []float32, k int) ([]ScoredChunk, error) {
	if uint64(len(query)) != s.cfg.VectorSize {
		return nil, fmt.Errorf("qdrant: %w: %d != %d", ErrDimensionMismatch, len(query), s.cfg.VectorSize)
	}
	if k <= 0 {
		return []ScoredChunk{}, nil
	}

	limit := uint64(k)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	hits := make([]ScoredChunk, 0, len(results))
	for _, r := range results {
		sim, ok := similarityFromScore(s.distance, r.GetScore())
		hits = append(hits, ScoredChunk{
			Chunk:      chunkFromPoint(r.GetId(), r.GetPayload(), r.GetVectors()),
			Similarity: sim,
			Scored:     ok,
		})
	}
	return hits, nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// similarityFromScore maps a Qdrant score to higher-is-closer similarity.
// Cosine and dot scores already are similarities; Euclid and Manhattan
// return distances, converted as 1 - distance.
func similarityFromScore(d qdrant.Distance, score float32) (float64, bool) {
	switch d {
	case qdrant.Distance_Cosine, qdrant.Distance_Dot:
		return float64(score), true
	case qdrant.Distance_Euclid, qdrant.Distance_Manhattan:
		return 1 - float64(score), true
	default:
		return 0, false
	}
}

// fileFilter matches points by exact fileName.
func fileFilter(fileName string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(payloadFileName, fileName)},
	}
}

// supersededFilter matches points of fileNames whose id is not among keep.
func supersededFilter(fileNames []string, keep []Chunk) *qdrant.Filter {
	f := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatchKeywords(payloadFileName, fileNames...)},
	}
	if len(keep) > 0 {
		ids := make([]*qdrant.PointId, 0, len(keep))
		for _, c := range keep {
			ids = append(ids, qdrant.NewIDUUID(c.ID))
		}
		f.MustNot = []*qdrant.Condition{qdrant.NewHasID(ids...)}
	}
	return f
}

// chunkFromPoint rebuilds a Chunk from a point's id, payload and vector.
func chunkFromPoint(id *qdrant.PointId, payload map[string]*qdrant.Value, vectors *qdrant.VectorsOutput) Chunk {
	c := Chunk{ID: id.GetUuid()}
	if payload != nil {
		c.Text = payload[payloadText].GetStringValue()
		c.Metadata.FileName = payload[payloadFileName].GetStringValue()
		c.Metadata.ChunkIndex = int(payload[payloadChunkIndex].GetIntegerValue())
		c.Metadata.FileType = payload[payloadFileType].GetStringValue()
		if ts, err := time.Parse(time.RFC3339Nano, payload[payloadUploadDate].GetStringValue()); err == nil {
			c.Metadata.UploadDate = ts
		}
	}
	if v := vectors.GetVector(); v != nil {
		if dense := v.GetDense(); dense != nil {
			c.Embedding = dense.GetData()
		} else {
			c.Embedding = v.GetData()
		}
	}
	return c
}
