package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"hookrelay/internal/platform/audit"
	"hookrelay/internal/platform/config"
	"hookrelay/internal/platform/database"
	"hookrelay/internal/platform/models"
	"hookrelay/internal/platform/repositories"
)

type failingPruner struct{}

func (failingPruner) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, errors.New("disk on fire")
}

func TestNewRetention_RejectsBadConfig(t *testing.T) {
	cases := []config.RetentionConfig{
		{Schedule: "@daily", MaxAge: 0},
		{Schedule: "every tuesday", MaxAge: time.Hour},
	}
	for _, cfg := range cases {
		if _, err := NewRetention(cfg, failingPruner{}, audit.NewLogger()); err == nil {
			t.Errorf("expected error for %+v", cfg)
		}
	}

	if _, err := NewRetention(config.RetentionConfig{Schedule: "*/5 * * * *", MaxAge: time.Hour}, failingPruner{}, audit.NewLogger()); err != nil {
		t.Errorf("five-field schedule rejected: %v", err)
	}
}

func TestRetention_RunOnce(t *testing.T) {
	db, err := database.Open(config.DatabaseConfig{URL: ":memory:", MaxConnections: 1})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(db, "up"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	webhooks := repositories.NewWebhookRepository(db)
	requests := repositories.NewRequestRepository(db)

	w, _, err := webhooks.EnsureByPath(ctx, "retained")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, age := range []time.Duration{48 * time.Hour, 36 * time.Hour, time.Hour} {
		req := &models.WebhookRequest{WebhookID: w.ID, Method: "POST", URL: "/webhook/retained", Timestamp: now.Add(-age)}
		if err := requests.Insert(ctx, req); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	ret, err := NewRetention(config.RetentionConfig{Schedule: "@daily", MaxAge: 24 * time.Hour}, requests, audit.NewLogger())
	if err != nil {
		t.Fatalf("new retention: %v", err)
	}
	ret.now = func() time.Time { return now }

	deleted, err := ret.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 deleted, got %d", deleted)
	}

	left, err := requests.List(ctx, repositories.ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(left) != 1 {
		t.Errorf("expected 1 request left, got %d", len(left))
	}
}

func TestRetention_RunOnceError(t *testing.T) {
	ret, err := NewRetention(config.RetentionConfig{Schedule: "@hourly", MaxAge: time.Hour}, failingPruner{}, audit.NewLogger())
	if err != nil {
		t.Fatalf("new retention: %v", err)
	}
	if _, err := ret.RunOnce(context.Background()); err == nil {
		t.Error("expected pruner error")
	}
}

func TestRetention_StartStop(t *testing.T) {
	ret, err := NewRetention(config.RetentionConfig{Schedule: "@hourly", MaxAge: time.Hour}, failingPruner{}, audit.NewLogger())
	if err != nil {
		t.Fatalf("new retention: %v", err)
	}
	ret.Stop()
	ret.Start(context.Background())
	ret.Stop()
}
