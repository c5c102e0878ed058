package repositories

import (
	"database/sql"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicatePath = errors.New("a webhook with this path already exists")
)

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
