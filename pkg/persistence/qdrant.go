package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/fyrsmithlabs/vecstore/pkg/docstore"
)

var tracer = otel.Tracer("vecstore.persistence.qdrant")

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// metadataPointID is the fixed point holding the store metadata record.
var metadataPointID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("vecstore-metadata")).String()

const (
	payloadKeyKind      = "kind"
	payloadKindDocument = "document"
	payloadKindMetadata = "metadata"

	scrollPageSize = 256
)

// QdrantConfig holds configuration for the Qdrant gRPC adapter.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (NOT the HTTP REST port).
	// Default: 6334
	Port int

	// CollectionName is the collection holding the documents.
	CollectionName string

	// VectorSize is the dimensionality of stored embeddings.
	// MUST match the embedding provider's output dimension.
	VectorSize uint64

	// Distance is the metric configured on a newly created collection.
	// Default: Cosine.
	Distance qdrant.Distance

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB.
	MaxMessageSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.Distance == 0 {
		c.Distance = qdrant.Distance_Cosine
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.CollectionName == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	if !collectionNamePattern.MatchString(c.CollectionName) {
		return fmt.Errorf("%w: collection name must match ^[a-z0-9_]{1,64}$, got %q", ErrInvalidConfig, c.CollectionName)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// Qdrant persists documents in a Qdrant collection over native gRPC.
//
// Point ids are derived deterministically from document ids with UUIDv5,
// so repeated saves of the same document overwrite in place. The original
// document id, content, metadata, and timestamps live in the payload; the
// embedding is the point vector.
type Qdrant struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger
}

// NewQdrant connects to Qdrant, health-checks it, and ensures the
// collection exists.
func NewQdrant(cfg QdrantConfig, logger *zap.Logger) (*Qdrant, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if !cfg.UseTLS {
		logger.Warn("qdrant gRPC using plaintext, insecure for production")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	a := &Qdrant{client: client, config: cfg, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant health check: %w", err)
	}
	if err := a.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	return a, nil
}

// Close releases the gRPC connection.
func (a *Qdrant) Close() error {
	return a.client.Close()
}

func (a *Qdrant) ensureCollection(ctx context.Context) error {
	exists, err := a.client.CollectionExists(ctx, a.config.CollectionName)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", a.config.CollectionName, err)
	}
	if exists {
		return nil
	}

	err = a.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: a.config.CollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     a.config.VectorSize,
			Distance: a.config.Distance,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", a.config.CollectionName, err)
	}

	a.logger.Info("created qdrant collection",
		zap.String("collection", a.config.CollectionName),
		zap.Uint64("vector_size", a.config.VectorSize),
	)
	return nil
}

// Load scrolls the full collection and returns every stored document.
func (a *Qdrant) Load(ctx context.Context) ([]docstore.StoredDocument, error) {
	ctx, span := tracer.Start(ctx, "Qdrant.Load")
	defer span.End()

	var docs []docstore.StoredDocument
	var offset *qdrant.PointId

	for {
		points, err := a.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: a.config.CollectionName,
			Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(true),
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("scrolling collection %s: %w", a.config.CollectionName, err)
		}

		start := 0
		if offset != nil && len(points) > 0 {
			// The offset point itself is included again; skip it.
			start = 1
		}

		for _, point := range points[start:] {
			doc, ok, err := decodePoint(point)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}
			if ok {
				docs = append(docs, doc)
			}
		}

		if len(points) < scrollPageSize {
			break
		}
		offset = points[len(points)-1].Id
	}

	span.SetAttributes(attribute.Int("document_count", len(docs)))
	span.SetStatus(codes.Ok, "success")
	return docs, nil
}

// LoadMetadata reads the fixed metadata point, (nil, nil) when absent.
func (a *Qdrant) LoadMetadata(ctx context.Context) (*docstore.StoreMetadata, error) {
	points, err := a.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: a.config.CollectionName,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(metadataPointID)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching metadata point: %w", err)
	}
	if len(points) == 0 {
		return nil, nil
	}

	payload := points[0].Payload
	meta := &docstore.StoreMetadata{
		ModelID:       payloadString(payload, "model_id"),
		Dimension:     int(payloadInt(payload, "dimension")),
		DocumentCount: int(payloadInt(payload, "document_count")),
		CreatedAt:     time.Unix(0, payloadInt(payload, "created_at")).UTC(),
		UpdatedAt:     time.Unix(0, payloadInt(payload, "updated_at")).UTC(),
	}
	return meta, nil
}

// Save upserts one point per document, merging by document id.
func (a *Qdrant) Save(ctx context.Context, docs []docstore.StoredDocument) error {
	ctx, span := tracer.Start(ctx, "Qdrant.Save")
	defer span.End()

	span.SetAttributes(attribute.Int("document_count", len(docs)))

	if len(docs) == 0 {
		span.SetStatus(codes.Ok, "noop")
		return nil
	}

	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		metaJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("encoding metadata for %q: %w", doc.ID, err)
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(doc.ID)),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: map[string]*qdrant.Value{
				payloadKeyKind: {Kind: &qdrant.Value_StringValue{StringValue: payloadKindDocument}},
				"doc_id":       {Kind: &qdrant.Value_StringValue{StringValue: doc.ID}},
				"content":      {Kind: &qdrant.Value_StringValue{StringValue: doc.Content}},
				"metadata":     {Kind: &qdrant.Value_StringValue{StringValue: string(metaJSON)}},
				"created_at":   {Kind: &qdrant.Value_IntegerValue{IntegerValue: doc.CreatedAt.UnixNano()}},
				"updated_at":   {Kind: &qdrant.Value_IntegerValue{IntegerValue: doc.UpdatedAt.UnixNano()}},
			},
		}
	}

	_, err := a.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: a.config.CollectionName,
		Points:         points,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting points: %w", err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// SaveMetadata upserts the fixed metadata point. Its vector is zeroed;
// only the payload matters.
func (a *Qdrant) SaveMetadata(ctx context.Context, meta docstore.StoreMetadata) error {
	_, err := a.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: a.config.CollectionName,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(metadataPointID),
			Vectors: qdrant.NewVectors(make([]float32, a.config.VectorSize)...),
			Payload: map[string]*qdrant.Value{
				payloadKeyKind:   {Kind: &qdrant.Value_StringValue{StringValue: payloadKindMetadata}},
				"model_id":       {Kind: &qdrant.Value_StringValue{StringValue: meta.ModelID}},
				"dimension":      {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(meta.Dimension)}},
				"document_count": {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(meta.DocumentCount)}},
				"created_at":     {Kind: &qdrant.Value_IntegerValue{IntegerValue: meta.CreatedAt.UnixNano()}},
				"updated_at":     {Kind: &qdrant.Value_IntegerValue{IntegerValue: meta.UpdatedAt.UnixNano()}},
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("upserting metadata point: %w", err)
	}
	return nil
}

// Remove deletes the points for the given document ids. Unknown ids are
// ignored by Qdrant.
func (a *Qdrant) Remove(ctx context.Context, ids []string) error {
	ctx, span := tracer.Start(ctx, "Qdrant.Remove")
	defer span.End()

	span.SetAttributes(attribute.Int("id_count", len(ids)))

	if len(ids) == 0 {
		span.SetStatus(codes.Ok, "noop")
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(pointID(id))
	}

	_, err := a.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: a.config.CollectionName,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting points: %w", err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Clear drops and recreates the collection.
func (a *Qdrant) Clear(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Qdrant.Clear")
	defer span.End()

	if err := a.client.DeleteCollection(ctx, a.config.CollectionName); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", a.config.CollectionName, err)
	}
	if err := a.ensureCollection(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// IsAvailable reports whether Qdrant answers a health check.
func (a *Qdrant) IsAvailable(ctx context.Context) bool {
	_, err := a.client.HealthCheck(ctx)
	return err == nil
}

// pointID maps a document id onto a stable UUID point id.
func pointID(docID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(docID)).String()
}

// decodePoint converts a scrolled point back into a document.
// Returns ok=false for non-document points such as the metadata record.
func decodePoint(point *qdrant.RetrievedPoint) (docstore.StoredDocument, bool, error) {
	payload := point.GetPayload()
	if payloadString(payload, payloadKeyKind) != payloadKindDocument {
		return docstore.StoredDocument{}, false, nil
	}

	doc := docstore.StoredDocument{
		ID:        payloadString(payload, "doc_id"),
		Content:   payloadString(payload, "content"),
		CreatedAt: time.Unix(0, payloadInt(payload, "created_at")).UTC(),
		UpdatedAt: time.Unix(0, payloadInt(payload, "updated_at")).UTC(),
	}

	if metaJSON := payloadString(payload, "metadata"); metaJSON != "" && metaJSON != "null" {
		if err := json.Unmarshal([]byte(metaJSON), &doc.Metadata); err != nil {
			return docstore.StoredDocument{}, false, fmt.Errorf("decoding metadata for %q: %w", doc.ID, err)
		}
	}

	if vectors := point.GetVectors(); vectors != nil {
		if vec := vectors.GetVector(); vec != nil {
			doc.Embedding = vec.GetData()
		}
	}

	return doc, true, nil
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func payloadInt(payload map[string]*qdrant.Value, key string) int64 {
	if v, ok := payload[key]; ok {
		return v.GetIntegerValue()
	}
	return 0
}
