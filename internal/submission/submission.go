// Package submission orchestrates a single document through storage,
// validation, persistence, and remediation as a four-step pipeline.
package submission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hudsci/epcis-engine/internal/epcis"
	"github.com/hudsci/epcis-engine/internal/persistence"
	"github.com/hudsci/epcis-engine/internal/pipelines"
	"github.com/hudsci/epcis-engine/internal/remediation"
	"github.com/hudsci/epcis-engine/internal/storage"
)

// Record is the caller-facing result of a submission: what was stored,
// what came out of validation, and where it now lives.
type Record struct {
	ID              string
	SupplierID      string
	Filename        string
	StorageLocation string
	Report          epcis.ValidationReport
	CreatedAt       time.Time
}

// Service wires the four collaborators a submission passes through.
type Service struct {
	Storage     storage.Storage
	Persistence *persistence.Store
	Notifier    remediation.Notifier
	Logger      *zap.Logger
}

// NewService constructs a Service from its collaborators.
func NewService(store storage.Storage, persist *persistence.Store, notifier remediation.Notifier, logger *zap.Logger) *Service {
	return &Service{Storage: store, Persistence: persist, Notifier: notifier, Logger: logger}
}

// Submit runs one document through store_artifact -> validate_document ->
// persist_record -> notify_if_invalid. notify_if_invalid only calls the
// Notifier when the report came back invalid.
func (s *Service) Submit(ctx context.Context, raw []byte, filename, supplierID string, isXML bool) (Record, error) {
	id := uuid.New().String()
	createdAt := time.Now()

	var location string
	var report epcis.ValidationReport

	flow := pipelines.NewFlow("submission-" + id)

	flow.AddTask("store_artifact", func() error {
		loc, err := s.Storage.Store(ctx, raw, filename, supplierID)
		if err != nil {
			return fmt.Errorf("storing artifact: %w", err)
		}
		location = loc
		s.Logger.Info("stored submission artifact",
			zap.String("submission_id", id),
			zap.String("location", location),
		)
		return nil
	})

	flow.AddTask("validate_document", func() error {
		report = epcis.ValidateDocument(raw, isXML)
		s.Logger.Info("validated submission",
			zap.String("submission_id", id),
			zap.Bool("valid", report.Valid),
			zap.Int("event_count", report.EventCount),
			zap.Int("error_count", len(report.Errors)),
		)
		return nil
	}, "store_artifact")

	flow.AddTask("persist_record", func() error {
		companiesJSON, err := persistence.MarshalCompanies(report.Companies)
		if err != nil {
			return err
		}
		errorsJSON, err := marshalErrors(report.Errors)
		if err != nil {
			return err
		}

		row := persistence.SubmissionRecord{
			ID:              id,
			SupplierID:      supplierID,
			Filename:        filename,
			StorageLocation: location,
			Valid:           report.Valid,
			EventCount:      report.EventCount,
			Companies:       companiesJSON,
			Errors:          errorsJSON,
			CreatedAt:       createdAt,
		}
		if err := s.Persistence.Insert(ctx, row); err != nil {
			return fmt.Errorf("persisting submission record: %w", err)
		}
		s.Logger.Info("persisted submission record", zap.String("submission_id", id))
		return nil
	}, "validate_document")

	flow.AddTask("notify_if_invalid", func() error {
		if report.Valid {
			return nil
		}
		info := remediation.SubmissionInfo{ID: id, SupplierID: supplierID, Filename: filename}
		if err := s.Notifier.Notify(ctx, info, report); err != nil {
			return fmt.Errorf("notifying: %w", err)
		}
		return nil
	}, "persist_record")

	if err := flow.Run(ctx); err != nil {
		return Record{}, err
	}

	return Record{
		ID:              id,
		SupplierID:      supplierID,
		Filename:        filename,
		StorageLocation: location,
		Report:          report,
		CreatedAt:       createdAt,
	}, nil
}

// Get fetches a previously submitted document's outcome by id.
func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	row, err := s.Persistence.Get(ctx, id)
	if err != nil {
		return Record{}, fmt.Errorf("fetching submission %s: %w", id, err)
	}

	companies, err := persistence.UnmarshalCompanies(row.Companies)
	if err != nil {
		return Record{}, err
	}
	errs, err := unmarshalErrors(row.Errors)
	if err != nil {
		return Record{}, err
	}

	return Record{
		ID:              row.ID,
		SupplierID:      row.SupplierID,
		Filename:        row.Filename,
		StorageLocation: row.StorageLocation,
		CreatedAt:       row.CreatedAt,
		Report: epcis.ValidationReport{
			Valid:      row.Valid,
			EventCount: row.EventCount,
			Companies:  companies,
			Errors:     errs,
		},
	}, nil
}
