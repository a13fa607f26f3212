package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spawn-mcp/campaign-studio/pkg/errors"
	"github.com/spawn-mcp/campaign-studio/pkg/gcp"
	"github.com/spawn-mcp/campaign-studio/pkg/types"
)

// DocumentClient is the subset of gcp.Client used here.
type DocumentClient interface {
	StoreDocument(ctx context.Context, collection, docID string, data interface{}) error
	CreateDocument(ctx context.Context, collection, docID string, data interface{}) error
	ReplaceDocument(ctx context.Context, collection, docID string, data interface{}) error
	GetDocument(ctx context.Context, collection, docID string, dest interface{}) error
}

// stageDocument is the Firestore shape of a stage result. The payload is kept
// as JSON so result schemas can evolve without Firestore struct tags.
type stageDocument struct {
	CampaignID string    `firestore:"campaign_id"`
	Kind       string    `firestore:"kind"`
	Complete   bool      `firestore:"complete"`
	Payload    string    `firestore:"payload"`
	UpdatedAt  time.Time `firestore:"updated_at"`
}

// Firestore stores each record kind in its own collection, one document per campaign.
type Firestore struct {
	client DocumentClient
	prefix string
}

// NewFirestore builds a Store over client, normally a *gcp.Client. Collection
// names are prefix + campaigns|research|analytics|content.
func NewFirestore(client DocumentClient, prefix string) *Firestore {
	return &Firestore{client: client, prefix: prefix}
}

func (f *Firestore) campaignsCollection() string { return f.prefix + "campaigns" }

func (f *Firestore) resultCollection(kind types.StageKind) string { return f.prefix + string(kind) }

func (f *Firestore) CreateCampaign(ctx context.Context, progress *types.CampaignProgress) error {
	if err := f.client.CreateDocument(ctx, f.campaignsCollection(), progress.CampaignID, progress); err != nil {
		if gcp.IsAlreadyExists(err) {
			return errors.Wrap(err, errors.ErrStateConflict, "campaign already exists")
		}
		return storeError(err, "create campaign")
	}
	return nil
}

func (f *Firestore) UpdateProgress(ctx context.Context, progress *types.CampaignProgress) error {
	if err := f.client.ReplaceDocument(ctx, f.campaignsCollection(), progress.CampaignID, progress); err != nil {
		if gcp.IsNotFound(err) {
			return errors.Wrap(err, errors.ErrNotFound, fmt.Sprintf("campaign %s not found", progress.CampaignID))
		}
		return storeError(err, "update progress")
	}
	return nil
}

func (f *Firestore) StoreStageResult(ctx context.Context, kind types.StageKind, campaignID string, result types.StageResult) error {
	if err := checkKind(kind, result); err != nil {
		return errors.Wrap(err, errors.ErrStoreEncoding, "invalid stage result")
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, errors.ErrStoreEncoding, "failed to encode stage result")
	}

	doc := stageDocument{
		CampaignID: campaignID,
		Kind:       string(kind),
		Complete:   result.Metadata().Complete,
		Payload:    string(payload),
		UpdatedAt:  time.Now().UTC(),
	}
	if err := f.client.StoreDocument(ctx, f.resultCollection(kind), campaignID, doc); err != nil {
		return storeError(err, fmt.Sprintf("store %s result", kind))
	}
	return nil
}

func (f *Firestore) GetProgress(ctx context.Context, campaignID string) (*types.CampaignProgress, error) {
	var progress types.CampaignProgress
	if err := f.client.GetDocument(ctx, f.campaignsCollection(), campaignID, &progress); err != nil {
		if gcp.IsNotFound(err) {
			return nil, nil
		}
		return nil, storeError(err, "get progress")
	}
	return &progress, nil
}

func (f *Firestore) GetStageResult(ctx context.Context, kind types.StageKind, campaignID string) (types.StageResult, error) {
	var doc stageDocument
	if err := f.client.GetDocument(ctx, f.resultCollection(kind), campaignID, &doc); err != nil {
		if gcp.IsNotFound(err) {
			return nil, nil
		}
		return nil, storeError(err, fmt.Sprintf("get %s result", kind))
	}
	result, err := types.DecodeStageResult(kind, []byte(doc.Payload))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreEncoding, "failed to decode stage result")
	}
	return result, nil
}

func (f *Firestore) Close() error {
	if c, ok := f.client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// storeError marks transient gRPC failures as retryable persistence outages.
func storeError(err error, op string) error {
	if gcp.IsTransient(err) {
		return errors.Wrap(err, errors.ErrStoreUnavailable, op)
	}
	e := errors.Wrap(err, errors.ErrStoreUnavailable, op)
	e.Retryable = false
	return e
}
