// Package sqlite provides a single-node Store backed by SQLite.
//
// WAL mode lets the HTTP handlers read progress while a campaign run writes it.
package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/spawn-mcp/campaign-studio/pkg/errors"
	"github.com/spawn-mcp/campaign-studio/pkg/types"

	// Pure-Go driver, registered as "sqlite".
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS campaigns (
    campaign_id    TEXT PRIMARY KEY,
    status         TEXT    NOT NULL,
    progress       INTEGER NOT NULL DEFAULT 0,
    current_stage  TEXT,
    message        TEXT    NOT NULL DEFAULT '',
    error          TEXT    NOT NULL DEFAULT '',
    created_at     TEXT    NOT NULL,
    updated_at     TEXT    NOT NULL
);

-- One row per (kind, campaign); writes overwrite.
CREATE TABLE IF NOT EXISTS stage_results (
    kind         TEXT    NOT NULL,
    campaign_id  TEXT    NOT NULL,
    complete     INTEGER NOT NULL,
    payload      TEXT    NOT NULL,
    updated_at   TEXT    NOT NULL,
    PRIMARY KEY (kind, campaign_id)
);
`

// Repository implements store.Store.
type Repository struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
//
//	repo, err := sqlite.Open("./data/campaigns.db")
func Open(path string) (*Repository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	// Single writer connection; busy_timeout covers the rest.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) CreateCampaign(ctx context.Context, p *types.CampaignProgress) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns (campaign_id, status, progress, current_stage, message, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(campaign_id) DO NOTHING`,
		p.CampaignID, string(p.Status), p.Progress, nullString(p.CurrentStage), p.Message, p.Error,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrStoreUnavailable, "sqlite: create campaign")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Newf(errors.ErrStateConflict, "campaign %s already exists", p.CampaignID)
	}
	return nil
}

func (r *Repository) UpdateProgress(ctx context.Context, p *types.CampaignProgress) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = ?, progress = ?, current_stage = ?, message = ?, error = ?, updated_at = ?
		WHERE campaign_id = ?`,
		string(p.Status), p.Progress, nullString(p.CurrentStage), p.Message, p.Error,
		formatTime(p.UpdatedAt), p.CampaignID,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrStoreUnavailable, "sqlite: update progress")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Newf(errors.ErrNotFound, "campaign %s not found", p.CampaignID)
	}
	return nil
}

func (r *Repository) StoreStageResult(ctx context.Context, kind types.StageKind, campaignID string, result types.StageResult) error {
	if result == nil || result.Kind() != kind {
		return errors.Newf(errors.ErrStoreEncoding, "invalid %s result", kind)
	}
	payload, err := marshalResult(result)
	if err != nil {
		return errors.Wrap(err, errors.ErrStoreEncoding, "sqlite: encode stage result")
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO stage_results (kind, campaign_id, complete, payload, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(kind, campaign_id) DO UPDATE SET
			complete = excluded.complete,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		string(kind), campaignID, result.Metadata().Complete, payload, formatTime(time.Now()),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrStoreUnavailable, "sqlite: store stage result")
	}
	return nil
}

func (r *Repository) GetProgress(ctx context.Context, campaignID string) (*types.CampaignProgress, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT campaign_id, status, progress, current_stage, message, error, created_at, updated_at
		FROM campaigns WHERE campaign_id = ?`, campaignID)

	var (
		p                    types.CampaignProgress
		status               string
		stage                sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&p.CampaignID, &status, &p.Progress, &stage, &p.Message, &p.Error, &createdAt, &updatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreUnavailable, "sqlite: get progress")
	}

	p.Status = types.CampaignStatus(status)
	if stage.Valid {
		p.CurrentStage = &stage.String
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreEncoding, "sqlite: created_at")
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreEncoding, "sqlite: updated_at")
	}
	return &p, nil
}

func (r *Repository) GetStageResult(ctx context.Context, kind types.StageKind, campaignID string) (types.StageResult, error) {
	var payload string
	err := r.db.QueryRowContext(ctx,
		`SELECT payload FROM stage_results WHERE kind = ? AND campaign_id = ?`,
		string(kind), campaignID,
	).Scan(&payload)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreUnavailable, "sqlite: get stage result")
	}

	result, err := types.DecodeStageResult(kind, []byte(payload))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrStoreEncoding, "sqlite: decode stage result")
	}
	return result, nil
}
