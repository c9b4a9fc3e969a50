package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"auction-sync/internal/domain"
)

const defaultHistoryLimit = 100

type MySQLJournalRepository struct {
	db *sql.DB
}

var _ domain.SyncJournal = (*MySQLJournalRepository)(nil)

func NewMySQLJournalRepository(db *sql.DB) *MySQLJournalRepository {
	return &MySQLJournalRepository{db: db}
}

func (r *MySQLJournalRepository) Record(ctx context.Context, entry domain.JournalEntry) error {
	query := `
        INSERT INTO sync_journal (auction_id, source, outcome, version, detail, recorded_at)
        VALUES (?, ?, ?, ?, ?, ?)
    `
	_, err := r.db.ExecContext(ctx, query,
		entry.AuctionID, entry.Source, string(entry.Outcome),
		entry.Version, entry.Detail, entry.RecordedAt.UTC())
	if err != nil {
		return fmt.Errorf("record journal entry: %w", err)
	}
	return nil
}

// History returns the newest entries first.
func (r *MySQLJournalRepository) History(ctx context.Context, auctionID string, limit int) ([]domain.JournalEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	query := `
        SELECT auction_id, source, outcome, version, detail, recorded_at
        FROM sync_journal
        WHERE auction_id = ?
        ORDER BY recorded_at DESC, id DESC
        LIMIT ?
    `

	rows, err := r.db.QueryContext(ctx, query, auctionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.JournalEntry
	for rows.Next() {
		var entry domain.JournalEntry
		var outcome string

		err := rows.Scan(&entry.AuctionID, &entry.Source, &outcome,
			&entry.Version, &entry.Detail, &entry.RecordedAt)
		if err != nil {
			return nil, err
		}

		entry.Outcome = domain.JournalOutcome(outcome)
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
