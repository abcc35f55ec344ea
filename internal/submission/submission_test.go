package submission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hudsci/epcis-engine/internal/epcis"
	"github.com/hudsci/epcis-engine/internal/persistence"
	"github.com/hudsci/epcis-engine/internal/remediation"
)

type fakeStorage struct {
	stored   map[string][]byte
	storeErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{stored: map[string][]byte{}}
}

func (f *fakeStorage) Store(ctx context.Context, content []byte, name, supplier string) (string, error) {
	if f.storeErr != nil {
		return "", f.storeErr
	}
	loc := "loc-" + name
	f.stored[loc] = content
	return loc, nil
}

func (f *fakeStorage) Retrieve(ctx context.Context, location string) ([]byte, error) {
	content, ok := f.stored[location]
	if !ok {
		return nil, errors.New("not found")
	}
	return content, nil
}

type fakeNotifier struct {
	notified []epcis.ValidationReport
}

func (f *fakeNotifier) Notify(ctx context.Context, info remediation.SubmissionInfo, report epcis.ValidationReport) error {
	f.notified = append(f.notified, report)
	return nil
}

const validXML = `<?xml version="1.0" encoding="UTF-8"?>
<epcis:EPCISDocument xmlns:epcis="urn:epcglobal:epcis:xsd:2" xmlns="urn:epcglobal:epcis:xsd:2" schemaVersion="2.0" creationDate="2024-01-15T10:00:00Z">
  <EPCISBody>
    <EventList>
      <ObjectEvent>
        <eventTime>2024-01-15T10:00:00.000Z</eventTime>
        <eventTimeZoneOffset>+00:00</eventTimeZoneOffset>
        <epcList>
          <epc>urn:epc:id:sgtin:0614141.107346.2017</epc>
        </epcList>
        <action>ADD</action>
        <bizStep>commissioning</bizStep>
        <disposition>active</disposition>
      </ObjectEvent>
    </EventList>
  </EPCISBody>
</epcis:EPCISDocument>`

func newTestService(t *testing.T) (*Service, *fakeStorage, *fakeNotifier, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	store := newFakeStorage()
	notifier := &fakeNotifier{}
	logger := zap.NewNop()

	svc := NewService(store, persistence.NewStore(sqlxDB), notifier, logger)
	return svc, store, notifier, mock
}

func TestSubmitValidDocument(t *testing.T) {
	svc, store, notifier, mock := newTestService(t)

	mock.ExpectExec("INSERT INTO epcis_submissions").
		WillReturnResult(sqlmock.NewResult(1, 1))

	record, err := svc.Submit(context.Background(), []byte(validXML), "shipment.xml", "acme-pharma", true)
	require.NoError(t, err)

	assert.True(t, record.Report.Valid, "expected a valid report, got errors: %+v", record.Report.Errors)
	assert.Equal(t, "loc-shipment.xml", record.StorageLocation)
	assert.Contains(t, store.stored, record.StorageLocation)
	assert.Empty(t, notifier.notified, "notifier should not run for a valid submission")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitInvalidDocumentStillPersistsAndNotifies(t *testing.T) {
	svc, _, notifier, mock := newTestService(t)

	mock.ExpectExec("INSERT INTO epcis_submissions").
		WillReturnResult(sqlmock.NewResult(1, 1))

	malformed := []byte("not xml at all")
	record, err := svc.Submit(context.Background(), malformed, "bad.xml", "acme-pharma", true)
	require.NoError(t, err)

	assert.False(t, record.Report.Valid, "expected an invalid report for malformed input")
	assert.Len(t, notifier.notified, 1, "notifier should run for invalid submissions")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmitStopsAtStorageFailure(t *testing.T) {
	svc, _, notifier, mock := newTestService(t)
	svc.Storage.(*fakeStorage).storeErr = errors.New("directus unavailable")

	_, err := svc.Submit(context.Background(), []byte(validXML), "shipment.xml", "acme-pharma", true)
	require.Error(t, err)
	assert.Empty(t, notifier.notified, "expected no notification when the flow aborts before that step")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRoundTripsAReport(t *testing.T) {
	svc, _, _, mock := newTestService(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "supplier_id", "filename", "storage_location", "valid", "event_count", "companies", "errors", "created_at",
	}).AddRow("sub-1", "acme-pharma", "shipment.xml", "loc-shipment.xml", true, 1, `["0614141"]`, `[]`, now)

	mock.ExpectQuery("SELECT id, supplier_id, filename, storage_location, valid, event_count, companies, errors, created_at").
		WithArgs("sub-1").
		WillReturnRows(rows)

	record, err := svc.Get(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "acme-pharma", record.SupplierID)
	assert.Equal(t, []string{"0614141"}, record.Report.Companies)
	assert.NoError(t, mock.ExpectationsWereMet())
}
