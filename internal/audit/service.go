// Package audit reads the security audit trail written by the login flows.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// Record is a raw audit_logs row joined with the actor email.
type Record struct {
	At       pgtype.Timestamptz
	Actor    pgtype.Text
	Action   string
	ClientIP pgtype.Text
	Meta     []byte
}

// WindowParams selects one page of records.
type WindowParams struct {
	FromAt     pgtype.Timestamptz
	ToAt       pgtype.Timestamptz
	Actor      pgtype.Text
	Action     pgtype.Text
	OffsetRows int32
	LimitRows  int32
}

// AllParams selects every matching record.
type AllParams struct {
	FromAt pgtype.Timestamptz
	ToAt   pgtype.Timestamptz
	Actor  pgtype.Text
	Action pgtype.Text
}

// Repository exposes the audit queries.
type Repository interface {
	TimelineWindow(ctx context.Context, arg WindowParams) ([]Record, error)
	TimelineAll(ctx context.Context, arg AllParams) ([]Record, error)
}

// Result wraps one timeline page with its paging info.
type Result struct {
	Rows   []TimelineRow
	Paging PagingInfo
}

// Service coordinates audit timeline reads.
type Service struct {
	repo Repository
}

// NewService constructs an audit timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline loads one page of audit records, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize
	params := WindowParams{
		FromAt:     toPgTime(filters.From),
		ToAt:       toPgTime(filters.To),
		Actor:      optionalText(filters.Actor),
		Action:     optionalText(filters.Action),
		OffsetRows: int32(offset),
		LimitRows:  int32(pageSize + 1),
	}
	records, err := s.repo.TimelineWindow(ctx, params)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(records) > pageSize
	if hasNext {
		records = records[:pageSize]
	}
	rows := make([]TimelineRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, mapRecord(rec))
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export loads every matching record without paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	records, err := s.repo.TimelineAll(ctx, AllParams{
		FromAt: toPgTime(filters.From),
		ToAt:   toPgTime(filters.To),
		Actor:  optionalText(filters.Actor),
		Action: optionalText(filters.Action),
	})
	if err != nil {
		return nil, err
	}
	rows := make([]TimelineRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, mapRecord(rec))
	}
	return rows, nil
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}

func mapRecord(rec Record) TimelineRow {
	row := TimelineRow{Action: rec.Action, Actor: "anonymous"}
	if rec.At.Valid {
		row.At = rec.At.Time
	}
	if rec.Actor.Valid && rec.Actor.String != "" {
		row.Actor = rec.Actor.String
	}
	if rec.ClientIP.Valid {
		row.ClientIP = rec.ClientIP.String
	}
	if detail := strings.TrimSpace(string(rec.Meta)); detail != "" && detail != "null" && detail != "{}" {
		row.Detail = detail
	}
	return row
}
