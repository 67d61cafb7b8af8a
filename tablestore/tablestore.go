// Package tablestore persists fitted parameter tables and computed beta
// tables as CSV files with content checksums, plus a small SQLite registry
// of what has been stored. Loads verify the checksum so a corrupted cache
// is detected rather than silently fed back into analysis.
package tablestore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"
	"github.com/jmoiron/sqlx"
	blake2b "github.com/minio/blake2b-simd"

	"github.com/neuropathbasel-pub/cnquant/preprocess"

	_ "github.com/mattn/go-sqlite3"
)

// ErrChecksumMismatch reports a stored table whose content no longer
// matches its recorded checksum. The file may be corrupt; it must not be
// used.
var ErrChecksumMismatch = errors.New("tablestore: checksum mismatch, file may be corrupt")

// ErrChecksumMissing reports a stored table with no checksum sidecar, which
// is distinct from corruption: the table was likely written by something
// other than this store.
var ErrChecksumMissing = errors.New("tablestore: checksum file not found")

const (
	tableSuffix    = ".csv"
	checksumSuffix = ".blake2b"
)

var schema = `
CREATE TABLE IF NOT EXISTS tables (
	key        TEXT PRIMARY KEY,
	path       TEXT NOT NULL,
	checksum   TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);`

// Store writes and reads checksummed tables under a single directory.
type Store struct {
	dir    string
	db     *sqlx.DB
	logger *log.Logger
}

// registryRow mirrors the registry schema.
type registryRow struct {
	Key       string    `db:"key"`
	Path      string    `db:"path"`
	Checksum  string    `db:"checksum"`
	CreatedAt time.Time `db:"created_at"`
}

// Open creates dir if needed and opens the table registry inside it. A ~/
// prefix in dir is expanded to the user's home directory.
func Open(dir string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}

	dir, err := expandHome(dir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, pfx.Err(err)
	}

	// URI filenames have to begin with 'file:'; see
	// https://www.sqlite.org/c3ref/open.html
	db, err := sqlx.Open("sqlite3", "file:"+filepath.Join(dir, "registry.db"))
	if err != nil {
		return nil, pfx.Err(err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, pfx.Err(err)
	}

	return &Store{dir: dir, db: db, logger: logger}, nil
}

// Close releases the registry handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// BetaRecord is one probe's beta value in a persisted beta table.
type BetaRecord struct {
	IlmnID string  `csv:"IlmnID"`
	Beta   float64 `csv:"beta"`
}

// StoreParams persists a fitted Normal+Exponential parameter table under
// key, so repeated application does not require re-fitting.
func (s *Store) StoreParams(key string, params []preprocess.NormExpParams) error {
	data, err := gocsv.MarshalBytes(&params)
	if err != nil {
		return pfx.Err(err)
	}

	return s.storeBytes(key, data)
}

// RetrieveParams loads and verifies a parameter table stored under key.
func (s *Store) RetrieveParams(key string) ([]preprocess.NormExpParams, error) {
	data, err := s.retrieveBytes(key)
	if err != nil {
		return nil, err
	}

	var params []preprocess.NormExpParams
	if err := gocsv.UnmarshalBytes(data, &params); err != nil {
		return nil, pfx.Err(err)
	}

	return params, nil
}

// StoreBetas persists one sample's beta values under key.
func (s *Store) StoreBetas(key string, betas []BetaRecord) error {
	data, err := gocsv.MarshalBytes(&betas)
	if err != nil {
		return pfx.Err(err)
	}

	return s.storeBytes(key, data)
}

// RetrieveBetas loads and verifies a beta table stored under key.
func (s *Store) RetrieveBetas(key string) ([]BetaRecord, error) {
	data, err := s.retrieveBytes(key)
	if err != nil {
		return nil, err
	}

	var betas []BetaRecord
	if err := gocsv.UnmarshalBytes(data, &betas); err != nil {
		return nil, pfx.Err(err)
	}

	return betas, nil
}

func (s *Store) storeBytes(key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	sum := blake2b.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	path := filepath.Join(s.dir, key+tableSuffix)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return pfx.Err(err)
	}

	sidecar := fmt.Sprintf("%s  %s\n", checksum, filepath.Base(path))
	if err := os.WriteFile(path+checksumSuffix, []byte(sidecar), 0o644); err != nil {
		return pfx.Err(err)
	}

	_, err := s.db.Exec(
		`INSERT INTO tables (key, path, checksum, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET path=excluded.path, checksum=excluded.checksum, created_at=excluded.created_at`,
		key, path, checksum, time.Now().UTC(),
	)
	if err != nil {
		return pfx.Err(err)
	}

	return nil
}

func (s *Store) retrieveBytes(key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	// The registry is authoritative when present; tables copied into the
	// directory out of band are still readable by key.
	path := filepath.Join(s.dir, key+tableSuffix)
	var row registryRow
	err := s.db.Get(&row, `SELECT key, path, checksum, created_at FROM tables WHERE key = ?`, key)
	if err == nil {
		path = row.Path
	} else {
		s.logger.Printf("tablestore: key %q not in registry, reading %s directly", key, path)
	}

	sidecar, err := os.ReadFile(path + checksumSuffix)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrChecksumMissing, path+checksumSuffix)
		}
		return nil, pfx.Err(err)
	}

	fields := strings.Fields(string(sidecar))
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty sidecar for %s", ErrChecksumMissing, path)
	}
	expected := fields[0]

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pfx.Err(err)
	}

	sum := blake2b.Sum256(data)
	if actual := hex.EncodeToString(sum[:]); actual != expected {
		return nil, fmt.Errorf("%w: %s: expected %s, got %s", ErrChecksumMismatch, path, expected, actual)
	}

	return data, nil
}

// validateKey keeps table keys usable as filenames.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("table key must not be empty")
	}

	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return fmt.Errorf("table key %q contains invalid character %q", key, r)
		}
	}

	return nil
}

// expandHome expands ~ to its proper path, where appropriate.
func expandHome(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		usr, err := user.Current()
		if err != nil {
			return "", pfx.Err(err)
		}
		path = filepath.Join(usr.HomeDir, path[2:])
	}

	return path, nil
}
