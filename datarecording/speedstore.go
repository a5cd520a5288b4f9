package datarecording

import (
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// A SpeedStore keeps the last speed setting in a SQLite database so that the
// next run starts at the same speed.
type SpeedStore struct {
	db  *sql.DB
	log *zap.Logger
}

// OpenSpeedStore opens, or creates, the speed database at path.
func OpenSpeedStore(path string, logger *zap.Logger) (*SpeedStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	return NewSpeedStoreWithDB(db, logger)
}

// NewSpeedStoreWithDB creates a speed store on an open database.
func NewSpeedStoreWithDB(db *sql.DB, logger *zap.Logger) (*SpeedStore, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS speed_setting (
	ID INTEGER PRIMARY KEY,
	Speed INTEGER NOT NULL
);`)
	if err != nil {
		return nil, fmt.Errorf("create speed table: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &SpeedStore{db: db, log: logger}, nil
}

// SpeedChanged stores a speed setting.
func (s *SpeedStore) SpeedChanged(speed int) {
	if err := s.Save(speed); err != nil {
		s.log.Error("cannot store speed", zap.Int("speed", speed), zap.Error(err))
	}
}

// Save stores a speed setting.
func (s *SpeedStore) Save(speed int) error {
	_, err := s.db.Exec(`INSERT INTO speed_setting (ID, Speed) VALUES (1, ?)
ON CONFLICT(ID) DO UPDATE SET Speed = excluded.Speed;`, speed)

	return err
}

// Load returns the stored speed. The boolean is false if no speed has been
// stored yet.
func (s *SpeedStore) Load() (int, bool, error) {
	var speed int

	err := s.db.QueryRow(`SELECT Speed FROM speed_setting WHERE ID = 1`).
		Scan(&speed)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, err
	}

	return speed, true, nil
}

// Close closes the database.
func (s *SpeedStore) Close() error {
	return s.db.Close()
}
