package vmem_go

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS vmem (
	name TEXT PRIMARY KEY,
	data BLOB NOT NULL
)`

// SQLiteStore keeps a resource as one BLOB row in an SQLite database, so
// several rings can share a single database file.
type SQLiteStore struct {
	Path string
	Name string
}

func NewSQLiteStore(path, name string) *SQLiteStore {
	return &SQLiteStore{Path: path, Name: name}
}

func (store *SQLiteStore) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate", store.Path))
	if err != nil {
		return nil, ioFailure("sqlite open", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, ioFailure("sqlite schema", err)
	}
	return db, nil
}

func (store *SQLiteStore) Exists() (bool, error) {
	db, err := store.open()
	if err != nil {
		return false, err
	}
	defer db.Close()

	var one int
	err = db.QueryRow(`SELECT 1 FROM vmem WHERE name = ?`, store.Name).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, ioFailure("sqlite exists", err)
	}
	return true, nil
}

func (store *SQLiteStore) Create(size int64) error {
	db, err := store.open()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	defer db.Close()

	_, err = db.Exec(`INSERT OR REPLACE INTO vmem (name, data) VALUES (?, zeroblob(?))`, store.Name, size)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return nil
}

func (store *SQLiteStore) Open() (StoreHandle, error) {
	db, err := store.open()
	if err != nil {
		return nil, err
	}

	var size int64
	err = db.QueryRow(`SELECT length(data) FROM vmem WHERE name = ?`, store.Name).Scan(&size)
	if err != nil {
		db.Close()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, store.Name, store.Path)
		}
		return nil, ioFailure("sqlite open", err)
	}
	return &sqliteHandle{db: db, name: store.Name}, nil
}

type sqliteHandle struct {
	db   *sql.DB
	name string
}

func (handle *sqliteHandle) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fs.ErrInvalid
	}

	var chunk []byte
	err := handle.db.QueryRow(`SELECT substr(data, ?, ?) FROM vmem WHERE name = ?`, off+1, len(p), handle.name).Scan(&chunk)
	if err != nil {
		return 0, err
	}
	n := copy(p, chunk)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (handle *sqliteHandle) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fs.ErrInvalid
	}

	tx, err := handle.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var data []byte
	if err := tx.QueryRow(`SELECT data FROM vmem WHERE name = ?`, handle.name).Scan(&data); err != nil {
		return 0, err
	}
	if end := off + int64(len(p)); end > int64(len(data)) {
		grown := make([]byte, end)
		copy(grown, data)
		data = grown
	}
	copy(data[off:], p)

	if _, err := tx.Exec(`UPDATE vmem SET data = ? WHERE name = ?`, data, handle.name); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (handle *sqliteHandle) Close() error {
	return handle.db.Close()
}
