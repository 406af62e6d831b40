package storage

const (
	initSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions
(
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    start_time  TIMESTAMP NOT NULL,
    device_type TEXT      NOT NULL,
    device_id   TEXT      NOT NULL,
    config      TEXT
);

CREATE TABLE IF NOT EXISTS sweeps
(
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
    started_at INTEGER NOT NULL,
    cancelled  BOOLEAN NOT NULL DEFAULT FALSE,
    config     TEXT
);

CREATE TABLE IF NOT EXISTS samples
(
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    sweep_id  INTEGER NOT NULL REFERENCES sweeps (id) ON DELETE CASCADE,
    elapsed   REAL    NOT NULL,
    frequency REAL    NOT NULL,
    real      INTEGER NOT NULL,
    imag      INTEGER NOT NULL
);`

	// Indexes are created when the store is closed so that inserts during
	// acquisition stay cheap.
	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_sweeps_session_started ON sweeps (session_id, started_at);
CREATE INDEX IF NOT EXISTS idx_samples_sweep_frequency ON samples (sweep_id, frequency);`

	insertSessionSQL = `
INSERT INTO sessions (start_time,
                      device_type,
                      device_id,
                      config)
VALUES (CURRENT_TIMESTAMP, ?, ?, ?)`

	selectSessionSQL = `
SELECT id,
       start_time,
       device_type,
       device_id,
       config
FROM sessions
WHERE id = ?`

	selectSessionsSQL = `
SELECT id,
       start_time,
       device_type,
       device_id,
       config
FROM sessions
ORDER BY start_time, id`

	insertSweepSQL = `
INSERT INTO sweeps (session_id,
                    started_at,
                    cancelled,
                    config)
VALUES (?, ?, ?, ?)`

	insertSamplesSQL = `
INSERT INTO samples (sweep_id,
                     elapsed,
                     frequency,
                     real,
                     imag)
VALUES `

	sampleValuesPlaceholder = "(?, ?, ?, ?, ?)"

	selectSweepSamplesSQL = `
SELECT w.id,
       w.started_at,
       w.cancelled,
       w.config,
       s.elapsed,
       s.frequency,
       s.real,
       s.imag
FROM sweeps w
         JOIN samples s ON s.sweep_id = w.id
WHERE w.session_id = ?
  AND w.started_at BETWEEN ? AND ?
  AND s.frequency BETWEEN ? AND ?
ORDER BY w.id, s.id`
)
