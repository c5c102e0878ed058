package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"hookrelay/internal/platform/database"
	"hookrelay/internal/platform/models"
)

const webhookColumns = `id, path, target_url, preview_field, active, created_at, updated_at`

type WebhookRepository struct {
	db *database.DB
}

func NewWebhookRepository(db *database.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

func (r *WebhookRepository) Create(ctx context.Context, webhook *models.Webhook) error {
	now := time.Now().UTC()
	webhook.ID = "wh_" + uuid.New().String()
	webhook.CreatedAt = now
	webhook.UpdatedAt = now

	query := r.db.Rebind(`
		INSERT INTO webhooks (id, path, target_url, preview_field, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.ExecContext(ctx, query, webhook.ID, webhook.Path, webhook.TargetURL, nullString(webhook.PreviewField),
		webhook.Active, toMillis(webhook.CreatedAt), toMillis(webhook.UpdatedAt))
	if database.IsUniqueViolation(err) {
		return ErrDuplicatePath
	}
	return err
}

// EnsureByPath returns the webhook registered at path, inserting a collect-only
// definition (no target, active) when none exists. Concurrent callers for the
// same unseen path converge on a single row; created reports whether this call
// inserted it.
func (r *WebhookRepository) EnsureByPath(ctx context.Context, path string) (webhook *models.Webhook, created bool, err error) {
	now := toMillis(time.Now().UTC())
	query := r.db.Rebind(`
		INSERT INTO webhooks (id, path, target_url, preview_field, active, created_at, updated_at)
		VALUES (?, ?, '', NULL, ?, ?, ?)
		ON CONFLICT (path) DO NOTHING
	`)
	res, err := r.db.ExecContext(ctx, query, "wh_"+uuid.New().String(), path, true, now, now)
	if err != nil {
		return nil, false, err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		created = true
	}

	webhook, err = r.FindByPath(ctx, path)
	if err != nil {
		return nil, false, err
	}
	return webhook, created, nil
}

func (r *WebhookRepository) FindByPath(ctx context.Context, path string) (*models.Webhook, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT `+webhookColumns+` FROM webhooks WHERE path = ?`), path)
	return scanWebhook(row)
}

func (r *WebhookRepository) GetByID(ctx context.Context, id string) (*models.Webhook, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT `+webhookColumns+` FROM webhooks WHERE id = ?`), id)
	return scanWebhook(row)
}

// List returns every webhook, newest first, with its captured request count.
func (r *WebhookRepository) List(ctx context.Context) ([]*models.Webhook, error) {
	query := `
		SELECT w.id, w.path, w.target_url, w.preview_field, w.active, w.created_at, w.updated_at,
			(SELECT COUNT(*) FROM webhook_requests wr WHERE wr.webhook_id = w.id)
		FROM webhooks w
		ORDER BY w.created_at DESC, w.id DESC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	webhooks := []*models.Webhook{}
	for rows.Next() {
		var (
			w                    models.Webhook
			previewField         sql.NullString
			createdAt, updatedAt int64
			count                int64
		)
		if err := rows.Scan(&w.ID, &w.Path, &w.TargetURL, &previewField, &w.Active, &createdAt, &updatedAt, &count); err != nil {
			return nil, err
		}
		w.PreviewField = stringPtr(previewField)
		w.CreatedAt = fromMillis(createdAt)
		w.UpdatedAt = fromMillis(updatedAt)
		w.RequestCount = &count
		webhooks = append(webhooks, &w)
	}
	return webhooks, rows.Err()
}

func (r *WebhookRepository) Update(ctx context.Context, webhook *models.Webhook) error {
	webhook.UpdatedAt = time.Now().UTC()

	query := r.db.Rebind(`
		UPDATE webhooks
		SET path = ?, target_url = ?, preview_field = ?, active = ?, updated_at = ?
		WHERE id = ?
	`)
	res, err := r.db.ExecContext(ctx, query, webhook.Path, webhook.TargetURL, nullString(webhook.PreviewField),
		webhook.Active, toMillis(webhook.UpdatedAt), webhook.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicatePath
		}
		return err
	}
	return requireAffected(res)
}

// Delete removes the webhook and every request captured for it.
func (r *WebhookRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.db.Rebind(`DELETE FROM webhook_requests WHERE webhook_id = ?`), id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, r.db.Rebind(`DELETE FROM webhooks WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

func scanWebhook(row *sql.Row) (*models.Webhook, error) {
	var (
		w                    models.Webhook
		previewField         sql.NullString
		createdAt, updatedAt int64
	)
	err := row.Scan(&w.ID, &w.Path, &w.TargetURL, &previewField, &w.Active, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	w.PreviewField = stringPtr(previewField)
	w.CreatedAt = fromMillis(createdAt)
	w.UpdatedAt = fromMillis(updatedAt)
	return &w, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
