package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/repsync/internal/model"
)

// LoadTemplates returns the cached personal templates of a user.
//
// A missing entry yields an empty slice. A blob that fails validation is
// treated the same way and logged; the next SaveTemplates overwrites it.
func (s *Store) LoadTemplates(ctx context.Context, userID string) ([]model.WorkoutTemplate, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `
		SELECT templates FROM template_cache WHERE user_id = ?
	`, userID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return []model.WorkoutTemplate{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load template cache: %w", err)
	}

	if err := s.validator.CheckTemplates([]byte(blob)); err != nil {
		s.logger.Warn("dropping corrupt template cache", "user_id", userID, "error", err)
		return []model.WorkoutTemplate{}, nil
	}

	var templates []model.WorkoutTemplate
	if err := json.Unmarshal([]byte(blob), &templates); err != nil {
		s.logger.Warn("dropping corrupt template cache", "user_id", userID, "error", err)
		return []model.WorkoutTemplate{}, nil
	}
	if templates == nil {
		templates = []model.WorkoutTemplate{}
	}
	return templates, nil
}

// SaveTemplates replaces the cached personal templates of a user.
func (s *Store) SaveTemplates(ctx context.Context, userID string, templates []model.WorkoutTemplate) error {
	if userID == "" {
		return fmt.Errorf("save template cache: user id is required")
	}
	if templates == nil {
		templates = []model.WorkoutTemplate{}
	}

	blob, err := json.Marshal(templates)
	if err != nil {
		return fmt.Errorf("save template cache: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO template_cache (user_id, templates, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			templates = excluded.templates,
			updated_at = excluded.updated_at
	`, userID, string(blob), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save template cache: %w", err)
	}
	return nil
}
