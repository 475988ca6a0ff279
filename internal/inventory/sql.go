package inventory

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"facr-builder/internal/model"
)

// Schema creates the host table SQLSource reads. It is valid for both MariaDB
// and SQLite.
const Schema = `CREATE TABLE IF NOT EXISTS inventory_host (
	identifier VARCHAR(255) NOT NULL,
	address VARCHAR(64) NULL,
	tags TEXT NULL,
	environment VARCHAR(64) NULL
)`

// SQLSource loads hosts from a CMDB style inventory_host table.
type SQLSource struct {
	db          *sql.DB
	environment string
}

// NewSQLSource opens and pings the database. driver is "mysql" or "sqlite".
// A non-empty environment restricts rows to that environment column value.
func NewSQLSource(driver, dsn, environment string) (*SQLSource, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return NewSQLSourceFromDB(db, environment), nil
}

func NewSQLSourceFromDB(db *sql.DB, environment string) *SQLSource {
	return &SQLSource{db: db, environment: environment}
}

func (s *SQLSource) Close() error {
	return s.db.Close()
}

func (s *SQLSource) Load(ctx context.Context, opts Options) (*Inventory, error) {
	query := "SELECT identifier, address, tags FROM inventory_host"
	var args []any
	if s.environment != "" {
		query += " WHERE environment = ?"
		args = append(args, s.environment)
	}
	query += " ORDER BY identifier"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query inventory_host: %w", err)
	}
	defer rows.Close()

	var hosts []model.Host
	for rows.Next() {
		var id string
		var address, tags sql.NullString
		if err := rows.Scan(&id, &address, &tags); err != nil {
			return nil, err
		}

		host := model.Host{ID: id, Tags: splitTags(tags.String)}
		switch {
		case address.Valid && address.String != "":
			addr, err := ParseAddress(address.String)
			if err != nil {
				return nil, &Error{Kind: InvalidAddress, Host: id, Err: err}
			}
			host.Address = addr
		case opts.Resolver != nil:
			addr, err := opts.Resolver.Resolve(ctx, id)
			if err != nil {
				return nil, &Error{Kind: InvalidAddress, Host: id, Err: err}
			}
			host.Address = addr.Unmap()
		default:
			return nil, &Error{Kind: InvalidAddress, Host: id, Err: fmt.Errorf("empty address column")}
		}
		hosts = append(hosts, host)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return FromHosts(hosts)
}
