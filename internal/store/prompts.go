package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/reviewlog/internal/ir"
)

// StorePrompts stores prompts under their content-addressed IDs and returns
// the IDs in input order. Storing an existing prompt is a no-op.
func (s *Store) StorePrompts(ctx context.Context, prompts []ir.Prompt) ([]string, error) {
	for i := range prompts {
		if errs := prompts[i].Validate(); len(errs) > 0 {
			return nil, fmt.Errorf("store prompts: prompt %d: %w", i, errs[0])
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store prompts: begin tx: %w", err)
	}
	defer tx.Rollback()

	ids := make([]string, len(prompts))
	for i, p := range prompts {
		id, err := ir.PromptID(p)
		if err != nil {
			return nil, fmt.Errorf("store prompts: %w", err)
		}
		body, err := ir.MarshalCanonical(p.Body)
		if err != nil {
			return nil, fmt.Errorf("store prompts: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO prompts (id, prompt_type, body) VALUES (?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, id, string(p.Type), string(body)); err != nil {
			return nil, fmt.Errorf("store prompts: insert %s: %w", id, err)
		}
		ids[i] = id
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store prompts: commit: %w", err)
	}
	return ids, nil
}

// GetPrompts returns prompts in the order of ids. Unknown IDs yield nil.
func (s *Store) GetPrompts(ctx context.Context, ids []string) ([]*ir.Prompt, error) {
	out := make([]*ir.Prompt, len(ids))
	for i, id := range ids {
		var promptType, body string
		err := s.db.QueryRowContext(ctx, `
			SELECT prompt_type, body FROM prompts WHERE id = ?
		`, id).Scan(&promptType, &body)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get prompt %s: %w", id, err)
		}

		var obj ir.IRObject
		if err := obj.UnmarshalJSON([]byte(body)); err != nil {
			return nil, fmt.Errorf("get prompt %s: decode body: %w", id, err)
		}
		out[i] = &ir.Prompt{Type: ir.PromptType(promptType), Body: obj}
	}
	return out, nil
}
