package storage

import (
	"context"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/impedance-sweeper/internal/ad5933"
)

// Store provides an interface for managing impedance sweep data storage operations.
// It handles measurement sessions and sweep results in a thread-safe manner.
// All operations that write to the database should be considered atomic.
type Store interface {
	// CreateSession initializes a new measurement session and returns its unique identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - deviceType: Type of the device (e.g., "ad5933", "simulator")
	//   - deviceID: Unique identifier of the device (e.g., bus name and address)
	//   - config: Optional device configuration. Can be string, []byte, or JSON-serializable object
	//
	// Returns:
	//   - sessionID: Unique identifier for the created session
	//   - error: If session creation fails or context is cancelled
	CreateSession(ctx context.Context, deviceType, deviceID string, config any) (sessionID int64, err error)

	// Session retrieves a specific measurement session by its ID.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - id: Unique session identifier
	//
	// Returns:
	//   - session: Pointer to session data
	//   - error: ErrNotFound if there is no such session, or if retrieval fails
	Session(ctx context.Context, id int64) (session *Session, err error)

	// Sessions returns all measurement sessions stored in the database.
	// Results are ordered by start time in ascending order.
	Sessions(ctx context.Context) (sessions []*Session, err error)

	// StoreSweepResult saves a sweep and its samples. Samples are inserted with
	// multi-row statements of at most batchSize rows, all in one transaction.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - sessionID: ID of the session this sweep belongs to
	//   - result: Sweep result containing the DFT samples
	//   - batchSize: Maximum number of samples per insert statement, DefaultBatchSize if <= 0
	//
	// Returns:
	//   - sweepID: Unique identifier for the stored sweep
	//   - error: If storage fails or context is cancelled
	StoreSweepResult(ctx context.Context, sessionID int64, result *ad5933.SweepResult, batchSize int) (sweepID int64, err error)

	// ReadSweeps returns an iterator over the sweeps of a session in
	// acquisition order. The reader must be closed after use.
	ReadSweeps(ctx context.Context, sessionID int64, opts ...ReaderOption) (SweepReader, error)

	// Close releases all database connections and resources.
	// After Close is called, the store instance cannot be reused.
	// It is safe to call Close multiple times.
	Close() error
}

// SweepReader provides an iterator-based interface for reading stored sweeps
// with optional time and frequency filtering.
type SweepReader interface {
	// Session returns the session this reader is accessing.
	Session() *Session

	// Next advances the iterator and returns true if there is another sweep
	// to read, false when the iteration is complete or if an error occurred.
	Next(context.Context) bool

	// Current returns the current sweep in the iteration.
	Current() *Sweep

	// Error returns any error that occurred during iteration.
	Error() error

	// Close releases any resources associated with the reader.
	Close() error
}
