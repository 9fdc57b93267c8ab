package occurrence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/index"
	"github.com/Adithya-Monish-Kumar-K/argus-index/pkg/postgres"
)

const occurrencesTable = "occurrences"

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS occurrences (
		doc_id     BIGINT    NOT NULL,
		seq        BIGSERIAL NOT NULL,
		term       TEXT      NOT NULL,
		word_index INTEGER   NOT NULL,
		char_start INTEGER   NOT NULL,
		char_end   INTEGER   NOT NULL,
		PRIMARY KEY (doc_id, seq)
	)`,
}

// Postgres stores one row per occurrence. Appends use COPY so large
// documents cost one round trip per batch.
type Postgres struct {
	client *postgres.Client
}

func NewPostgres(client *postgres.Client) *Postgres {
	return &Postgres{client: client}
}

// Migrate creates the occurrences table if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if err := p.client.Migrate(ctx, postgresSchema...); err != nil {
		return fmt.Errorf("migrating occurrence store: %w", err)
	}
	return nil
}

func (p *Postgres) Append(ctx context.Context, id index.DocumentID, occs []index.Occurrence) error {
	if len(occs) == 0 {
		return nil
	}
	return p.client.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, pq.CopyIn(occurrencesTable,
			"doc_id", "term", "word_index", "char_start", "char_end"))
		if err != nil {
			return fmt.Errorf("preparing occurrence copy: %w", err)
		}
		defer stmt.Close()
		for _, o := range occs {
			if _, err := stmt.ExecContext(ctx, int64(id), o.Text, o.WordIndex, o.CharStart, o.CharEnd); err != nil {
				return fmt.Errorf("copying occurrence: %w", err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			return fmt.Errorf("flushing occurrence copy: %w", err)
		}
		return nil
	})
}

func (p *Postgres) Load(ctx context.Context, id index.DocumentID) ([]index.Occurrence, error) {
	rows, err := p.client.DB.QueryContext(ctx,
		`SELECT term, word_index, char_start, char_end FROM occurrences WHERE doc_id = $1 ORDER BY seq`,
		int64(id))
	if err != nil {
		return nil, fmt.Errorf("querying occurrences of document %d: %w", id, err)
	}
	defer rows.Close()

	var out []index.Occurrence
	for rows.Next() {
		var o index.Occurrence
		if err := rows.Scan(&o.Text, &o.WordIndex, &o.CharStart, &o.CharEnd); err != nil {
			return nil, fmt.Errorf("scanning occurrence: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Delete removes every occurrence of id.
func (p *Postgres) Delete(ctx context.Context, id index.DocumentID) error {
	_, err := p.client.DB.ExecContext(ctx, `DELETE FROM occurrences WHERE doc_id = $1`, int64(id))
	return err
}

func (p *Postgres) Ping(ctx context.Context) error { return p.client.Ping(ctx) }

func (p *Postgres) Close() error { return p.client.Close() }
