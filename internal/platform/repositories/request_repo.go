package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"hookrelay/internal/platform/database"
	"hookrelay/internal/platform/models"
)

const requestColumns = `id, webhook_id, method, url, headers, body, query_params, timestamp, ip_address, user_agent, relay_status, relay_response`

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

type RequestRepository struct {
	db *database.DB
}

func NewRequestRepository(db *database.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// ListOpts filters and pages List. A zero Limit means DefaultListLimit.
type ListOpts struct {
	Limit     int
	Offset    int
	WebhookID string
}

func (r *RequestRepository) Insert(ctx context.Context, req *models.WebhookRequest) error {
	if req.ID == "" {
		req.ID = "req_" + uuid.New().String()
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}
	if req.Headers == "" {
		req.Headers = "{}"
	}
	if req.QueryParams == "" {
		req.QueryParams = "{}"
	}

	query := r.db.Rebind(`
		INSERT INTO webhook_requests (` + requestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.ExecContext(ctx, query,
		req.ID, req.WebhookID, req.Method, req.URL, req.Headers, nullString(req.Body), req.QueryParams,
		toMillis(req.Timestamp), nullString(req.IPAddress), nullString(req.UserAgent),
		nullString(req.RelayStatus), nullString(req.RelayResponse))
	return err
}

func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.WebhookRequest, error) {
	row := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT `+requestColumns+` FROM webhook_requests WHERE id = ?`), id)

	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return req, err
}

func (r *RequestRepository) List(ctx context.Context, opts ListOpts) ([]*models.WebhookRequest, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	var (
		where []string
		args  []interface{}
	)
	if opts.WebhookID != "" {
		where = append(where, "webhook_id = ?")
		args = append(args, opts.WebhookID)
	}

	query := `SELECT ` + requestColumns + ` FROM webhook_requests`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := []*models.WebhookRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// UpdateRelay overwrites the relay outcome of an existing request.
func (r *RequestRepository) UpdateRelay(ctx context.Context, id string, status, response *string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE webhook_requests SET relay_status = ?, relay_response = ? WHERE id = ?`),
		nullString(status), nullString(response), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *RequestRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM webhook_requests WHERE id = ?`), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *RequestRepository) DeleteAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM webhook_requests`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteOlderThan removes requests captured before cutoff.
func (r *RequestRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM webhook_requests WHERE timestamp < ?`), toMillis(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(s rowScanner) (*models.WebhookRequest, error) {
	var (
		req                                  models.WebhookRequest
		body, ip, ua, relayStatus, relayResp sql.NullString
		ts                                   int64
	)
	err := s.Scan(&req.ID, &req.WebhookID, &req.Method, &req.URL, &req.Headers, &body, &req.QueryParams,
		&ts, &ip, &ua, &relayStatus, &relayResp)
	if err != nil {
		return nil, err
	}
	req.Body = stringPtr(body)
	req.Timestamp = fromMillis(ts)
	req.IPAddress = stringPtr(ip)
	req.UserAgent = stringPtr(ua)
	req.RelayStatus = stringPtr(relayStatus)
	req.RelayResponse = stringPtr(relayResp)
	return &req, nil
}
