package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// InsertPipeline inserts a pipeline row within tx, returning its id.
func (s *Store) InsertPipeline(ctx context.Context, tx pgx.Tx, p Pipeline) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO pipelines (packages, archs, git_branch, git_sha, github_pr, creator_login, creator_avatar_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		p.Packages, p.Archs, p.GitBranch, p.GitSHA, p.GitHubPR, p.CreatorLogin, p.CreatorAvatarURL,
	).Scan(&id)
	return id, err
}

const pipelineSelectColumns = `
	id, packages, archs, git_branch, git_sha, github_pr, creator_login, creator_avatar_url, created_at`

func scanPipeline(row rowScanner) (*Pipeline, error) {
	var p Pipeline
	err := row.Scan(&p.ID, &p.Packages, &p.Archs, &p.GitBranch, &p.GitSHA, &p.GitHubPR,
		&p.CreatorLogin, &p.CreatorAvatarURL, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetPipeline fetches one pipeline by id.
func (s *Store) GetPipeline(ctx context.Context, id int64) (*Pipeline, error) {
	return scanPipeline(s.pool.QueryRow(ctx, `SELECT `+pipelineSelectColumns+` FROM pipelines WHERE id = $1`, id))
}

// ListPipelinesFilter narrows ListPipelines results.
type ListPipelinesFilter struct {
	// StableOnly restricts results to pipelines built from the "stable" branch.
	StableOnly bool
	// GitHubPROnly restricts results to pipelines with a non-null github_pr.
	GitHubPROnly bool
}

// ListPipelines returns a page of pipelines, descending by creation time.
func (s *Store) ListPipelines(ctx context.Context, page, itemsPerPage int, filter ListPipelinesFilter) ([]Pipeline, int64, error) {
	offset, limit := pageOffset(page, itemsPerPage)

	where := "WHERE true"
	var args []any
	args = append(args, limit, offset)
	if filter.StableOnly {
		where += " AND git_branch = 'stable'"
	}
	if filter.GitHubPROnly {
		where += " AND github_pr IS NOT NULL"
	}

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM pipelines `+where).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+pipelineSelectColumns+` FROM pipelines `+where+`
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Pipeline
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *p)
	}
	return out, total, rows.Err()
}
