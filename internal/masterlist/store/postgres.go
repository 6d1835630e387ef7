// Package store persists extracted Master List records in PostgreSQL. The
// replace operation is all or nothing: either every record of the new
// payload is visible or the previous contents stay untouched.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"certsync/internal/masterlist"
	"certsync/pkg/platform/tx"
	"certsync/pkg/result"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the trust-store tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure trust store schema: %w", err)
	}
	return nil
}

// Clock abstracts time.Now so tests can pin the persisted timestamp.
type Clock func() time.Time

// PostgresStore is the PostgreSQL-backed trust store.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
	clock  Clock
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) PostgresOption {
	return func(s *PostgresStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the clock used for the updated_at column.
func WithClock(clock Clock) PostgresOption {
	return func(s *PostgresStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewPostgres constructs a PostgreSQL-backed trust store.
func NewPostgres(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{
		db:     db,
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Store replaces the entire trust store contents with the payload and
// reports the number of rows written. When the context already carries a
// transaction the writes join it and its owner decides the final commit;
// otherwise the store runs its own transaction.
func (s *PostgresStore) Store(ctx context.Context, payload *masterlist.MasterListPayload) result.Result[int] {
	return result.FromComputation(func() (int, error) {
		if payload == nil {
			return 0, fmt.Errorf("nil payload")
		}
		if ambient, ok := tx.From(ctx); ok {
			return s.replace(ctx, ambient, payload)
		}

		own, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return 0, fmt.Errorf("begin replace transaction: %w", err)
		}
		rows, err := s.replace(ctx, own, payload)
		if err != nil {
			if rbErr := own.Rollback(); rbErr != nil {
				s.logger.Error("rollback after failed replace", "error", rbErr)
			}
			return 0, err
		}
		if err := own.Commit(); err != nil {
			return 0, fmt.Errorf("commit replace transaction: %w", err)
		}
		return rows, nil
	}, result.CodeDatabase, "replace trust store contents")
}

// replace deletes in child-before-parent order, then inserts the payload.
func (s *PostgresStore) replace(ctx context.Context, q tx.Querier, payload *masterlist.MasterListPayload) (int, error) {
	for _, table := range []string{"revoked_certificate_list", "crls", "dsc", "root_ca"} {
		if _, err := q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return 0, fmt.Errorf("clear %s: %w", table, err)
		}
	}

	now := s.clock()
	rows := 0

	for _, rec := range payload.RootCAs {
		if err := s.insertCertificate(ctx, q, "root_ca", rec, now); err != nil {
			return 0, err
		}
		rows++
	}
	for _, rec := range payload.DSCs {
		if err := s.insertCertificate(ctx, q, "dsc", rec, now); err != nil {
			return 0, err
		}
		rows++
	}
	for _, rec := range payload.CRLs {
		query := `
			INSERT INTO crls (id, raw_crl, source, issuer, country, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		if _, err := q.ExecContext(ctx, query,
			rec.ID, rec.RawCRL, rec.Source, rec.Issuer, rec.Country, now); err != nil {
			return 0, fmt.Errorf("insert crl %s: %w", rec.ID, err)
		}
		rows++
	}
	for _, rec := range payload.RevokedCertificates {
		query := `
			INSERT INTO revoked_certificate_list
				(id, source, country, serial_number, crl, revocation_reason, revocation_date, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		if _, err := q.ExecContext(ctx, query,
			rec.ID, rec.Source, rec.Country, rec.SerialNumber, rec.CrlID,
			rec.RevocationReason, rec.RevocationDate, now); err != nil {
			return 0, fmt.Errorf("insert revoked entry %s: %w", rec.ID, err)
		}
		rows++
	}

	s.logger.Info("trust store replaced",
		"root_cas", len(payload.RootCAs),
		"dscs", len(payload.DSCs),
		"crls", len(payload.CRLs),
		"revoked", len(payload.RevokedCertificates),
		"rows", rows,
	)
	return rows, nil
}

func (s *PostgresStore) insertCertificate(ctx context.Context, q tx.Querier, table string, rec masterlist.CertificateRecord, now time.Time) error {
	query := `
		INSERT INTO ` + table + `
			(id, certificate, subject_key_id, authority_key_id, issuer, raw_issuer, source, serial_number, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := q.ExecContext(ctx, query,
		rec.ID, rec.Certificate, rec.SubjectKeyID, rec.AuthorityKeyID,
		rec.Issuer, rec.RawIssuer, rec.Source, rec.SerialNumber, now); err != nil {
		return fmt.Errorf("insert %s %s: %w", table, rec.ID, err)
	}
	return nil
}

// Counts is a per-table row tally for status reporting.
type Counts struct {
	RootCAs             int `json:"root_cas"`
	DSCs                int `json:"dscs"`
	CRLs                int `json:"crls"`
	RevokedCertificates int `json:"revoked_certificates"`
}

// Total sums all tables.
func (c Counts) Total() int {
	return c.RootCAs + c.DSCs + c.CRLs + c.RevokedCertificates
}

// Counts reports the current row count of every trust-store table.
func (s *PostgresStore) Counts(ctx context.Context) (Counts, error) {
	q := tx.Active(ctx, s.db)
	var counts Counts
	for table, target := range map[string]*int{
		"root_ca":                  &counts.RootCAs,
		"dsc":                      &counts.DSCs,
		"crls":                     &counts.CRLs,
		"revoked_certificate_list": &counts.RevokedCertificates,
	} {
		if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(target); err != nil {
			return Counts{}, fmt.Errorf("count %s: %w", table, err)
		}
	}
	return counts, nil
}

// Ping verifies database connectivity for readiness probes.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("trust store ping: %w", err)
	}
	return nil
}
