package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/artpar/modreg/core/errs"
	"github.com/artpar/modreg/ports"
)

// ReplayIndex implements ports.ReplayIndex over the notifications table.
type ReplayIndex struct {
	db *DB
}

// NewReplayIndex creates a replay index on a migrated database.
func NewReplayIndex(db *DB) *ReplayIndex {
	return &ReplayIndex{db: db}
}

// Earliest returns the time of the oldest stored notification of module.
func (r *ReplayIndex) Earliest(ctx context.Context, module string) (time.Time, bool, error) {
	var at sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		"SELECT MIN(stored_at) FROM notifications WHERE module = ?", module,
	).Scan(&at)
	if err != nil {
		return time.Time{}, false, errs.Wrap(errs.Internal, err, "query earliest notification of %q", module)
	}
	if !at.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(at.Int64, 0), true, nil
}

// Record stores one notification timestamp of module.
func (r *ReplayIndex) Record(ctx context.Context, module string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO notifications (module, stored_at) VALUES (?, ?)", module, at.Unix(),
	)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "record notification of %q", module)
	}
	return nil
}

var _ ports.ReplayIndex = (*ReplayIndex)(nil)
