// Package source provides the Qdrant-backed candidate sources consumed by
// the retrieval pipeline, plus per-tenant collection provisioning.
//
// Each tenant gets one collection holding both vector representations of
// every document as named vectors ("dense", "sparse"); the platform is a
// payload filter within the collection. Dense and sparse searches are
// issued as independent queries so the pipeline can fuse them itself and
// attach per-source provenance.
package source

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/mhara/deskrag/internal/retrieval"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "sparse"
)

// Payload keys attached to every indexed document.
const (
	payloadDocumentID = "document_id"
	payloadTenantID   = "tenant_id"
	payloadPlatform   = "platform"
	payloadDocType    = "doc_type"
	payloadCreatedAt  = "created_at"
	payloadErrorCode  = "error_code"
	payloadContent    = "content"
)

// Client wraps a Qdrant connection shared by both candidate sources.
type Client struct {
	client *qdrant.Client
}

// NewClient connects to Qdrant. url is "host:port" (gRPC port, e.g.
// "localhost:6334"); a bare host assumes the default port.
func NewClient(url string) (*Client, error) {
	host, portStr, err := net.SplitHostPort(url)
	if err != nil {
		host = url
		portStr = "6334"
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant url: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &Client{client: client}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.client.Close()
}

func collectionName(tenantID string) string {
	return fmt.Sprintf("tenant_%s", tenantID)
}

// Provision creates the hybrid collection for a new tenant.
func (c *Client) Provision(ctx context.Context, tenantID string, dimension int) error {
	err := c.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collectionName(tenantID),
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			denseVectorName: {
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			},
		}),
		SparseVectorsConfig: qdrant.NewSparseVectorsConfig(map[string]*qdrant.SparseVectorParams{
			sparseVectorName: {}, // Default sparse index config (BM25-style IDF server-side)
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to provision collection: %w", err)
	}

	return nil
}

// Drop deletes a tenant's collection.
func (c *Client) Drop(ctx context.Context, tenantID string) error {
	if err := c.client.DeleteCollection(ctx, collectionName(tenantID)); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// Exists checks whether a tenant's collection exists.
func (c *Client) Exists(ctx context.Context, tenantID string) (bool, error) {
	exists, err := c.client.CollectionExists(ctx, collectionName(tenantID))
	if err != nil {
		return false, fmt.Errorf("failed to check collection existence: %w", err)
	}
	return exists, nil
}

// DenseSource searches the named dense vector by embedding similarity.
type DenseSource struct {
	client *Client
}

// NewDenseSource creates the dense candidate source.
func NewDenseSource(client *Client) *DenseSource {
	return &DenseSource{client: client}
}

// Name implements retrieval.CandidateSource.
func (s *DenseSource) Name() retrieval.Source {
	return retrieval.SourceDense
}

// Search implements retrieval.CandidateSource.
func (s *DenseSource) Search(ctx context.Context, partition retrieval.Partition, query retrieval.Query, limit int) ([]retrieval.Candidate, error) {
	if len(query.Vector) == 0 {
		return nil, fmt.Errorf("dense search requires a query vector")
	}

	points, err := s.client.query(ctx, partition, &qdrant.QueryPoints{
		CollectionName: collectionName(partition.TenantID),
		Query:          qdrant.NewQueryDense(query.Vector),
		Using:          qdrant.PtrOf(denseVectorName),
		Limit:          qdrant.PtrOf(uint64(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("dense search failed: %w", err)
	}

	return toCandidates(points, retrieval.SourceDense), nil
}

// SparseSource searches the named sparse vector by lexical term match.
type SparseSource struct {
	client *Client
}

// NewSparseSource creates the sparse candidate source.
func NewSparseSource(client *Client) *SparseSource {
	return &SparseSource{client: client}
}

// Name implements retrieval.CandidateSource.
func (s *SparseSource) Name() retrieval.Source {
	return retrieval.SourceSparse
}

// Search implements retrieval.CandidateSource.
func (s *SparseSource) Search(ctx context.Context, partition retrieval.Partition, query retrieval.Query, limit int) ([]retrieval.Candidate, error) {
	if query.Sparse == nil || len(query.Sparse.Indices) == 0 {
		return nil, fmt.Errorf("sparse search requires a sparse query vector")
	}

	points, err := s.client.query(ctx, partition, &qdrant.QueryPoints{
		CollectionName: collectionName(partition.TenantID),
		Query:          qdrant.NewQuerySparse(query.Sparse.Indices, query.Sparse.Values),
		Using:          qdrant.PtrOf(sparseVectorName),
		Limit:          qdrant.PtrOf(uint64(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("sparse search failed: %w", err)
	}

	return toCandidates(points, retrieval.SourceSparse), nil
}

// query issues one scored query with the partition's platform filter and
// payload retrieval enabled.
func (c *Client) query(ctx context.Context, partition retrieval.Partition, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	req.Filter = &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch(payloadPlatform, partition.Platform),
		},
	}
	req.WithPayload = qdrant.NewWithPayload(true)

	return c.client.Query(ctx, req)
}

// toCandidates maps scored points to candidates, assigning 1-based ranks
// in result order. Metadata comes entirely from the payload; the pipeline
// validates it against the requested partition.
func toCandidates(points []*qdrant.ScoredPoint, src retrieval.Source) []retrieval.Candidate {
	candidates := make([]retrieval.Candidate, 0, len(points))
	for i, point := range points {
		candidate := retrieval.Candidate{
			DocumentID: point.Id.GetUuid(),
			Source:     src,
			RawScore:   float64(point.Score),
			Rank:       i + 1,
		}

		if payload := point.Payload; payload != nil {
			if docID, ok := payload[payloadDocumentID]; ok && docID.GetStringValue() != "" {
				candidate.DocumentID = docID.GetStringValue()
			}
			if content, ok := payload[payloadContent]; ok {
				candidate.Content = content.GetStringValue()
			}
			candidate.Metadata = retrieval.Metadata{
				TenantID:  payload[payloadTenantID].GetStringValue(),
				Platform:  payload[payloadPlatform].GetStringValue(),
				DocType:   retrieval.DocType(payload[payloadDocType].GetStringValue()),
				ErrorCode: payload[payloadErrorCode].GetStringValue(),
			}
			if created, ok := payload[payloadCreatedAt]; ok {
				if ts, err := time.Parse(time.RFC3339, created.GetStringValue()); err == nil {
					candidate.Metadata.CreatedAt = ts
				}
			}

			extra := make(map[string]string)
			for k, v := range payload {
				switch k {
				case payloadDocumentID, payloadTenantID, payloadPlatform,
					payloadDocType, payloadCreatedAt, payloadErrorCode, payloadContent:
				default:
					extra[k] = v.GetStringValue()
				}
			}
			if len(extra) > 0 {
				candidate.Metadata.Extra = extra
			}
		}

		candidates = append(candidates, candidate)
	}

	return candidates
}

// Ensure the sources implement the pipeline contract.
var (
	_ retrieval.CandidateSource = (*DenseSource)(nil)
	_ retrieval.CandidateSource = (*SparseSource)(nil)
)
