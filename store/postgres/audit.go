package postgres

import (
	"context"
	"encoding/json"

	"github.com/MrEthical07/authcore/store"
)

// AppendAudit inserts e. Entries are never updated or deleted by this package.
func (s *Store) AppendAudit(ctx context.Context, e store.AuditEntry) error {
	detail := []byte("{}")
	if len(e.Detail) > 0 {
		var err error
		if detail, err = json.Marshal(e.Detail); err != nil {
			return err
		}
	}

	_, err := s.db.ExecContext(ctx, `
		insert into audit_entries (id, occurred_at, account_id, kind, success, reason, origin, user_agent, detail)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.ID, e.Timestamp.UTC(), e.AccountID, e.Kind, e.Success, e.Reason, e.Origin, e.UserAgent, string(detail),
	)
	return mapErr(err)
}
