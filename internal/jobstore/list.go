package jobstore

import (
	"context"
	"fmt"

	"github.com/cuongbtq/mediaqueue/internal/domain"
)

// JobFilter narrows a job listing. Zero values mean "any".
type JobFilter struct {
	Category domain.Category
	Status   domain.Status
	GuildID  int64
	PageSize int
	// Cursor is the id of the last job of the previous page.
	Cursor int64
}

// List returns up to PageSize+1 jobs, newest first, so callers can tell
// whether another page exists.
func (s *Store) List(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM media_jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Category != "" {
		query += fmt.Sprintf(" AND category = $%d", argIdx)
		args = append(args, filter.Category)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.GuildID != 0 {
		query += fmt.Sprintf(" AND guild_id = $%d", argIdx)
		args = append(args, filter.GuildID)
		argIdx++
	}

	if filter.Cursor > 0 {
		query += fmt.Sprintf(" AND id < $%d", argIdx)
		args = append(args, filter.Cursor)
		argIdx++
	}

	query += " ORDER BY id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, wrap("list jobs", err)
	}

	return jobs, nil
}
