// Package store persists broker connections and their token state.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"brokergate/internal/model"
)

const _connectionsSchema = `CREATE TABLE IF NOT EXISTS broker_connections (
	id              BIGSERIAL PRIMARY KEY,
	email           TEXT NOT NULL,
	password        TEXT NOT NULL,
	server          TEXT NOT NULL,
	environment     TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'active',
	access_token    TEXT NOT NULL DEFAULT '',
	refresh_token   TEXT NOT NULL DEFAULT '',
	token_expire_ms BIGINT NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (email, server, environment)
);`

type ConnectionsRepo struct {
	db *sqlx.DB
}

func NewConnectionsRepo(db *sqlx.DB) *ConnectionsRepo {
	return &ConnectionsRepo{db: db}
}

// Migrate creates the connections table when it doesn't exist yet.
func (r *ConnectionsRepo) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, _connectionsSchema); err != nil {
		return fmt.Errorf("%w: can't migrate broker_connections", err)
	}
	return nil
}

// ErrNotFound marks lookups for connections that don't exist.
var ErrNotFound = errors.New("connection not found")

const (
	_insertConnection = `INSERT INTO broker_connections (email, password, server, environment, status)
						VALUES ($1, $2, $3, $4, $5)
						ON CONFLICT (email, server, environment)
						DO UPDATE SET
							password = EXCLUDED.password,
							status = EXCLUDED.status
						RETURNING id, created_at;`
	_queryConnection  = "SELECT * FROM broker_connections WHERE id = $1"
	_queryConnections = "SELECT * FROM broker_connections ORDER BY id"
	_deleteConnection = "DELETE FROM broker_connections WHERE id = $1"
	_saveTokenPair    = `UPDATE broker_connections
						SET access_token = $1, refresh_token = $2, token_expire_ms = $3, status = $4
						WHERE id = $5`
	_setStatus = "UPDATE broker_connections SET status = $1 WHERE id = $2"
)

// Create registers a connection, updating the stored password when the same
// credentials triple is registered again.
func (r *ConnectionsRepo) Create(ctx context.Context, conn *model.BrokerConnection) error {
	if conn.Status == "" {
		conn.Status = model.ConnectionActive
	}
	row := r.db.QueryRowxContext(ctx, _insertConnection,
		conn.Email, conn.Password, conn.Server, conn.Environment, conn.Status,
	)
	if err := row.Scan(&conn.ID, &conn.CreatedAt); err != nil {
		return fmt.Errorf("%w: can't create broker connection", err)
	}
	return nil
}

func (r *ConnectionsRepo) GetByID(ctx context.Context, id int64) (*model.BrokerConnection, error) {
	var conn model.BrokerConnection
	if err := r.db.GetContext(ctx, &conn, _queryConnection, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: can't query broker connection", err)
	}
	return &conn, nil
}

func (r *ConnectionsRepo) List(ctx context.Context) ([]model.BrokerConnection, error) {
	var conns []model.BrokerConnection
	if err := r.db.SelectContext(ctx, &conns, _queryConnections); err != nil {
		return nil, fmt.Errorf("%w: can't list broker connections", err)
	}
	return conns, nil
}

func (r *ConnectionsRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, _deleteConnection, id)
	if err != nil {
		return fmt.Errorf("%w: can't delete broker connection", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

// SaveTokenPair stores a freshly exchanged pair and flips the connection
// back to active: a successful exchange proves the credentials still work.
func (r *ConnectionsRepo) SaveTokenPair(ctx context.Context, connectionID int64, pair model.TokenPair) error {
	if _, err := r.db.ExecContext(ctx, _saveTokenPair,
		pair.AccessToken, pair.RefreshToken, pair.ExpireMS, model.ConnectionActive, connectionID,
	); err != nil {
		return fmt.Errorf("%w: can't save token pair", err)
	}
	return nil
}

func (r *ConnectionsRepo) SetStatus(ctx context.Context, connectionID int64, status model.ConnectionStatus) error {
	if _, err := r.db.ExecContext(ctx, _setStatus, status, connectionID); err != nil {
		return fmt.Errorf("%w: can't update connection status", err)
	}
	return nil
}
