package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"brokergate/internal/model"
)

func newMockRepo(t *testing.T) (*ConnectionsRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewConnectionsRepo(sqlx.NewDb(db, "sqlmock")), mock
}

func TestCreateConnection(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO broker_connections").
		WithArgs("trader@example.com", "secret", "DEMO1", model.Demo, model.ConnectionActive).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), now))

	conn := &model.BrokerConnection{
		Email:       "trader@example.com",
		Password:    "secret",
		Server:      "DEMO1",
		Environment: model.Demo,
	}
	if err := repo.Create(context.Background(), conn); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if conn.ID != 7 {
		t.Errorf("id = %d, want 7", conn.ID)
	}
	if conn.Status != model.ConnectionActive {
		t.Errorf("status = %q, want active", conn.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT \\* FROM broker_connections WHERE id").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestSaveTokenPairReactivatesConnection(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE broker_connections").
		WithArgs("access", "refresh", int64(1234), model.ConnectionActive, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SaveTokenPair(context.Background(), 7, model.TokenPair{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpireMS:     1234,
	})
	if err != nil {
		t.Fatalf("SaveTokenPair: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDeleteMissingConnection(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("DELETE FROM broker_connections").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
