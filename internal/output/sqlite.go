package output

import (
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/birda/internal/errors"
)

// DetectionRecord is a row in the detections table of sqlite result files.
type DetectionRecord struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	RunID          string `gorm:"index"`
	File           string `gorm:"index"`
	StartTime      float64
	EndTime        float64
	ScientificName string `gorm:"index"`
	CommonName     string
	Confidence     float64
	Latitude       *float64
	Longitude      *float64
	Week           *int
	Model          string
	SpeciesList    string
	CreatedAt      time.Time
}

// TableName overrides the default gorm table name.
func (DetectionRecord) TableName() string { return "detections" }

const (
	sqliteInsertBatch   = 500
	sqliteSlowThreshold = 200 * time.Millisecond
)

type sqliteWriter struct {
	path    string
	db      *gorm.DB
	runID   string
	records []DetectionRecord
	done    bool
}

// newSQLiteWriter opens a fresh database at path. An existing file is
// replaced so that reprocessing never appends duplicate rows.
func newSQLiteWriter(path string, opts *Options) (*sqliteWriter, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, outputError(path, "create", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormLog{log: GetLogger().Module("sqlite"), slow: sqliteSlowThreshold},
	})
	if err != nil {
		return nil, outputError(path, "open", err)
	}
	return &sqliteWriter{path: path, db: db, runID: opts.RunID}, nil
}

func (s *sqliteWriter) WriteHeader() error {
	if err := s.db.AutoMigrate(&DetectionRecord{}); err != nil {
		return outputError(s.path, "migrate", err)
	}
	return nil
}

func (s *sqliteWriter) WriteDetection(d *Detection) error {
	if s.done {
		return outputError(s.path, "write", errWriterFinalized)
	}
	s.records = append(s.records, DetectionRecord{
		RunID:          s.runID,
		File:           filepath.Base(d.FilePath),
		StartTime:      d.StartTime,
		EndTime:        d.EndTime,
		ScientificName: d.ScientificName,
		CommonName:     d.CommonName,
		Confidence:     d.Confidence,
		Latitude:       d.Metadata.Lat,
		Longitude:      d.Metadata.Lon,
		Week:           d.Metadata.Week,
		Model:          d.Metadata.Model,
		SpeciesList:    d.Metadata.SpeciesList,
	})
	return nil
}

// Finalize inserts the collected rows in a single transaction and closes
// the database.
func (s *sqliteWriter) Finalize() error {
	if s.done {
		return nil
	}
	s.done = true

	var insertErr error
	if len(s.records) > 0 {
		if err := s.db.CreateInBatches(s.records, sqliteInsertBatch).Error; err != nil {
			insertErr = outputError(s.path, "insert", err)
		}
	}

	var closeErr error
	if sqlDB, err := s.db.DB(); err != nil {
		closeErr = outputError(s.path, "close", err)
	} else if err := sqlDB.Close(); err != nil {
		closeErr = outputError(s.path, "close", err)
	}
	return errors.Join(insertErr, closeErr)
}
