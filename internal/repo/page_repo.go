package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/clinrag/internal/model"
	"github.com/xxxsen/clinrag/internal/pkg/dbutil"
	appErr "github.com/xxxsen/clinrag/internal/pkg/errors"
)

var pageFields = []string{"id", "user_id", "query_answers", "version", "ctime", "mtime"}

type PageRepo struct {
	db *sql.DB
}

func NewPageRepo(db *sql.DB) *PageRepo {
	return &PageRepo{db: db}
}

func (r *PageRepo) Create(ctx context.Context, page *model.Page) error {
	blob, err := json.Marshal(page.QueryAnswers)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":            page.ID,
		"user_id":       page.UserID,
		"query_answers": string(blob),
		"version":       page.Version,
		"ctime":         page.Ctime,
		"mtime":         page.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("pages", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *PageRepo) GetByID(ctx context.Context, userID, pageID string) (*model.Page, error) {
	where := map[string]interface{}{
		"id":      pageID,
		"user_id": userID,
	}
	sqlStr, args, err := builder.BuildSelect("pages", where, pageFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, appErr.ErrNotFound
	}
	return scanPage(rows)
}

// ListByUser returns the user's pages, newest first.
func (r *PageRepo) ListByUser(ctx context.Context, userID string) ([]model.Page, error) {
	where := map[string]interface{}{
		"user_id":  userID,
		"_orderby": "ctime desc, id asc",
	}
	sqlStr, args, err := builder.BuildSelect("pages", where, pageFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	pages := make([]model.Page, 0)
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, *page)
	}
	return pages, rows.Err()
}

// Replace writes page only if the stored version still equals
// expectVersion. On success page.Version is advanced.
func (r *PageRepo) Replace(ctx context.Context, page *model.Page, expectVersion int64) error {
	blob, err := json.Marshal(page.QueryAnswers)
	if err != nil {
		return err
	}
	where := map[string]interface{}{
		"id":      page.ID,
		"user_id": page.UserID,
		"version": expectVersion,
	}
	update := map[string]interface{}{
		"query_answers": string(blob),
		"version":       expectVersion + 1,
		"mtime":         page.Mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("pages", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := r.GetByID(ctx, page.UserID, page.ID); err != nil {
			return err
		}
		return appErr.ErrConflict
	}
	page.Version = expectVersion + 1
	return nil
}

func scanPage(rows *sql.Rows) (*model.Page, error) {
	var page model.Page
	var blob []byte
	if err := rows.Scan(&page.ID, &page.UserID, &blob, &page.Version, &page.Ctime, &page.Mtime); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(blob, &page.QueryAnswers); err != nil {
		return nil, err
	}
	return &page, nil
}
