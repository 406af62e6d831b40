package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/roman-kulish/impedance-sweeper/internal/ad5933"
)

// DefaultBatchSize is the number of samples per insert statement.
const DefaultBatchSize = 500

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("not found")

var _ Store = (*SqliteStore)(nil)

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store backed by the Sqlite database at dbPath.
// Connections are opened lazily and the schema is created on first write.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro&_busy_timeout=5000"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateSession(ctx context.Context, deviceType, deviceID string, config any) (sessionID int64, err error) {
	configData, err := toNullString(config)
	if err != nil {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, deviceType, deviceID, configData)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

func (s *SqliteStore) Session(ctx context.Context, id int64) (session *Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}
	return loadSession(ctx, db, id)
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess *Session
		if sess, err = scanSession(rows); err != nil {
			return
		}
		sessions = append(sessions, sess)
	}
	err = rows.Err()
	return
}

// ReadSweeps creates a reader over the sweeps of a session. Filters are
// applied to the sweep start time and to the sample frequency; sweeps with
// no sample in the frequency range are skipped.
func (s *SqliteStore) ReadSweeps(ctx context.Context, sessionID int64, opts ...ReaderOption) (SweepReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newSqliteSweepReader(ctx, db, sessionID, opts...)
}

func (s *SqliteStore) StoreSweepResult(ctx context.Context, sessionID int64, result *ad5933.SweepResult, batchSize int) (sweepID int64, err error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	sweep, err := toSweepData(sessionID, result)
	if err != nil {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		err = fmt.Errorf("beginning transaction: %w", err)
		return
	}
	defer rollbackWithError(tx, &err)

	res, err := tx.ExecContext(ctx, insertSweepSQL, sweep.SessionID, sweep.StartedAt, sweep.Cancelled, sweep.Config)
	if err != nil {
		err = fmt.Errorf("inserting sweep: %w", err)
		return
	}
	if sweepID, err = res.LastInsertId(); err != nil {
		err = fmt.Errorf("getting sweep ID: %w", err)
		return
	}

	for start := 0; start < len(result.Samples); start += batchSize {
		end := min(start+batchSize, len(result.Samples))
		if err = insertSamples(ctx, tx, sweepID, result.Samples[start:end]); err != nil {
			return
		}
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("committing transaction: %w", err)
	}
	return
}

func insertSamples(ctx context.Context, tx *sql.Tx, sweepID int64, samples []ad5933.Sample) error {
	values := make([]any, 0, len(samples)*5)
	for _, sample := range samples {
		data := toSampleData(sweepID, sample)
		values = append(values,
			data.SweepID,
			data.Elapsed,
			data.Frequency,
			data.Real,
			data.Imag,
		)
	}

	query := batchInsertSQL(insertSamplesSQL, sampleValuesPlaceholder, len(samples))
	if _, err := tx.ExecContext(ctx, query, values...); err != nil {
		return fmt.Errorf("batch inserting samples: %w", err)
	}
	return nil
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var config sql.NullString
	if err := row.Scan(&sess.ID, &sess.StartTime, &sess.DeviceType, &sess.DeviceID, &config); err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	if config.Valid {
		sess.Config = &config.String
	}
	return &sess, nil
}

func loadSession(ctx context.Context, db *sql.DB, id int64) (session *Session, err error) {
	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	session, err = scanSession(stmt.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		err = fmt.Errorf("session %d: %w", id, ErrNotFound)
	}
	return
}
