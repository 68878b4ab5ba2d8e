package sqldb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// WriteAudit appends an audit entry. Details are stored as JSON.
func (s *Store) WriteAudit(ctx context.Context, actor, action, target string, details map[string]any) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}
	query := s.rebind(`
		INSERT INTO audit_log (ts, actor, action, target, details)
		VALUES (?, ?, ?, ?, ?)
	`)
	if _, err := s.db.ExecContext(ctx, query, time.Now().Unix(), actor, action, target, string(raw)); err != nil {
		return fmt.Errorf("write audit: %w", err)
	}
	return nil
}
