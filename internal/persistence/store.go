// Package persistence records submission outcomes in TiDB so a supplier's
// prior submissions can be looked up by id.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// SubmissionRecord is one row of the epcis_submissions table.
type SubmissionRecord struct {
	ID              string    `db:"id"`
	SupplierID      string    `db:"supplier_id"`
	Filename        string    `db:"filename"`
	StorageLocation string    `db:"storage_location"`
	Valid           bool      `db:"valid"`
	EventCount      int       `db:"event_count"`
	Companies       string    `db:"companies"`  // JSON array of company prefixes
	Errors          string    `db:"errors"`      // JSON array of validation errors
	CreatedAt       time.Time `db:"created_at"`
}

// schema is the table this store reads and writes. Migrations are applied
// out of band; this comment is the authoritative record of the shape.
//
// CREATE TABLE epcis_submissions (
//     id               VARCHAR(36)   PRIMARY KEY,
//     supplier_id      VARCHAR(128)  NOT NULL,
//     filename         VARCHAR(255)  NOT NULL,
//     storage_location VARCHAR(255)  NOT NULL,
//     valid            BOOLEAN       NOT NULL,
//     event_count      INT           NOT NULL,
//     companies        JSON          NOT NULL,
//     errors           JSON          NOT NULL,
//     created_at       DATETIME      NOT NULL,
//     INDEX idx_supplier_created (supplier_id, created_at)
// );

// Config holds the connection parameters for ConnectTiDB.
type Config struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSL      bool
}

// ConnectTiDB opens a pooled connection to TiDB over the MySQL wire protocol.
func ConnectTiDB(cfg Config, logger *zap.Logger) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
	if cfg.SSL {
		dsn += "&tls=true"
	}

	logger.Info("connecting to TiDB",
		zap.String("host", cfg.Host),
		zap.String("port", cfg.Port),
		zap.String("database", cfg.Name),
	)

	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to TiDB: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	logger.Info("TiDB connection established")
	return db, nil
}

// Store persists SubmissionRecords and looks them up by id.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps an already-connected db.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Insert writes record as a new row.
func (s *Store) Insert(ctx context.Context, record SubmissionRecord) error {
	const query = `
		INSERT INTO epcis_submissions
			(id, supplier_id, filename, storage_location, valid, event_count, companies, errors, created_at)
		VALUES
			(:id, :supplier_id, :filename, :storage_location, :valid, :event_count, :companies, :errors, :created_at)`

	_, err := s.db.NamedExecContext(ctx, query, record)
	if err != nil {
		return fmt.Errorf("inserting submission %s: %w", record.ID, err)
	}
	return nil
}

// Get fetches the submission record with the given id.
func (s *Store) Get(ctx context.Context, id string) (SubmissionRecord, error) {
	const query = `
		SELECT id, supplier_id, filename, storage_location, valid, event_count, companies, errors, created_at
		FROM epcis_submissions
		WHERE id = ?`

	var record SubmissionRecord
	err := s.db.GetContext(ctx, &record, query, id)
	if err == sql.ErrNoRows {
		return SubmissionRecord{}, fmt.Errorf("submission %s: %w", id, err)
	}
	if err != nil {
		return SubmissionRecord{}, fmt.Errorf("fetching submission %s: %w", id, err)
	}
	return record, nil
}

// MarshalCompanies encodes companies as the JSON array stored in the
// companies column.
func MarshalCompanies(companies []string) (string, error) {
	b, err := json.Marshal(companies)
	if err != nil {
		return "", fmt.Errorf("marshaling companies: %w", err)
	}
	return string(b), nil
}

// UnmarshalCompanies decodes the companies column back into a string slice.
func UnmarshalCompanies(raw string) ([]string, error) {
	var companies []string
	if raw == "" {
		return companies, nil
	}
	if err := json.Unmarshal([]byte(raw), &companies); err != nil {
		return nil, fmt.Errorf("unmarshaling companies: %w", err)
	}
	return companies, nil
}
