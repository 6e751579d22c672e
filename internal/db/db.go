// internal/db/db.go
package db

import (
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/kanbanflow/campaign-engine/internal/config"
)

func Open(cfg config.Config) (*sql.DB, error) {
	conn, err := sql.Open("postgres", cfg.DatabaseDSN())
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
