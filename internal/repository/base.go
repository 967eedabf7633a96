// Package repository implements the inbox storage components on GORM:
// the participant registry, the message store and the conversation directory.
package repository

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"ridehail/internal/models"
	"ridehail/internal/observability"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// PostgreSQL error codes that reflect bad input rather than a broken store.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// Page bounds a list query. A non-positive Limit means no limit.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) apply(db *gorm.DB) *gorm.DB {
	if p.Limit > 0 {
		db = db.Limit(p.Limit)
	}
	if p.Offset > 0 {
		db = db.Offset(p.Offset)
	}
	return db
}

// classify turns a driver error into an AppError. AppErrors pass through.
func classify(op string, err error) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return &models.AppError{Code: models.CodeValidation, Message: "record already exists", Err: err}
		case pgForeignKeyViolation:
			return &models.AppError{Code: models.CodeValidation, Message: "referenced record does not exist", Err: err}
		case pgCheckViolation:
			return &models.AppError{Code: models.CodeValidation, Message: "value violates a constraint: " + pgErr.ConstraintName, Err: err}
		}
	}
	return models.NewStorageError(op, err)
}

// fail logs err with the operation and ids involved and returns it classified.
func fail(ctx context.Context, log *observability.RepoLogger, op string, err error, attrs ...slog.Attr) error {
	log.LogError(ctx, err, op, attrs...)
	return classify(op, err)
}

// likePattern builds a case-insensitive substring pattern with LIKE
// metacharacters escaped by backslash.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(r.Replace(term)) + "%"
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
