package news

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"brokergate/internal/model"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(sqlx.NewDb(db, "sqlmock")), mock
}

func testEvent(sourceID string, at time.Time) model.EconomicEvent {
	return model.EconomicEvent{
		EventTypeID: model.EventTypeID("CPI m/m", "US"),
		SourceID:    sourceID,
		Title:       "CPI m/m",
		Country:     "US",
		Currency:    "USD",
		Impact:      model.ImpactHigh,
		EventTime:   at,
	}
}

func TestUpsertBatchCountsInsertsAndUpdates(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2026, time.September, 1, 12, 30, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO economic_events").
		WillReturnRows(sqlmock.NewRows([]string{"inserted"}).AddRow(true))
	mock.ExpectQuery("INSERT INTO economic_events").
		WillReturnRows(sqlmock.NewRows([]string{"inserted"}).AddRow(false))
	mock.ExpectCommit()

	saved, updated, err := store.UpsertBatch(context.Background(), []model.EconomicEvent{
		testEvent("1", at),
		testEvent("2", at),
	})
	if err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	if saved != 1 || updated != 1 {
		t.Errorf("saved=%d updated=%d, want 1/1", saved, updated)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpsertBatchRollsBackOnFailure(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2026, time.September, 1, 12, 30, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO economic_events").
		WillReturnRows(sqlmock.NewRows([]string{"inserted"}).AddRow(true))
	mock.ExpectQuery("INSERT INTO economic_events").
		WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	if _, _, err := store.UpsertBatch(context.Background(), []model.EconomicEvent{
		testEvent("1", at),
		testEvent("2", at),
	}); err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpsertBatchEmptyIsNoop(t *testing.T) {
	store, mock := newMockStore(t)

	if _, _, err := store.UpsertBatch(context.Background(), nil); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM economic_events").
		WillReturnResult(sqlmock.NewResult(0, 17))

	n, err := store.DeleteOlderThan(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if n != 17 {
		t.Errorf("pruned = %d, want 17", n)
	}
}
