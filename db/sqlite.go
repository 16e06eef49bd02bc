package db

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"grain-classification/models"
	"grain-classification/utils"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

type SQLiteClient struct {
	db *sql.DB
}

func NewSQLiteClient(dataSourceName string) (*SQLiteClient, error) {
	// Extract the file path before query parameters
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}

	dbDir := filepath.Dir(dbPath)
	if dbDir != "." && dbDir != "" {
		if err := utils.CreateFolder(dbDir); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	// Add busy timeout param to DSN (milliseconds)
	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000"
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("error creating tables: %w", err)
	}

	return &SQLiteClient{db: db}, nil
}

func createTables(db *sql.DB) error {
	createAnalysesTable := `
    CREATE TABLE IF NOT EXISTS analyses (
        id TEXT PRIMARY KEY,
        timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
        device_id TEXT,
        especie TEXT NOT NULL,
        confianca REAL NOT NULL DEFAULT 0,
        status TEXT NOT NULL,
        result TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_analyses_timestamp ON analyses(timestamp);
    CREATE INDEX IF NOT EXISTS idx_analyses_especie ON analyses(especie);
    `

	if _, err := db.Exec(createAnalysesTable); err != nil {
		return fmt.Errorf("error creating analyses table: %w", err)
	}
	return nil
}

func (c *SQLiteClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// StoreAnalysis inserts one classification record.
func (c *SQLiteClient) StoreAnalysis(analysis *models.Analysis) error {
	if analysis.ID == "" {
		analysis.ID = utils.GenerateUniqueID()
	}
	if analysis.Timestamp.IsZero() {
		analysis.Timestamp = time.Now()
	}

	_, err := c.db.Exec(`
		INSERT INTO analyses (id, timestamp, device_id, especie, confianca, status, result)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		analysis.ID,
		analysis.Timestamp,
		analysis.DeviceID,
		analysis.Species,
		analysis.Confidence,
		analysis.Status,
		string(analysis.Result),
	)
	if err != nil {
		return fmt.Errorf("error storing analysis: %w", err)
	}
	return nil
}

// RecentAnalyses returns the newest records, most recent first.
func (c *SQLiteClient) RecentAnalyses(limit int) ([]models.Analysis, error) {
	rows, err := c.db.Query(`
		SELECT id, timestamp, device_id, especie, confianca, status, result
		FROM analyses
		ORDER BY timestamp DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying analyses: %w", err)
	}
	defer rows.Close()

	var analyses []models.Analysis
	for rows.Next() {
		var a models.Analysis
		var resultJSON string
		if err := rows.Scan(&a.ID, &a.Timestamp, &a.DeviceID, &a.Species,
			&a.Confidence, &a.Status, &resultJSON); err != nil {
			return nil, fmt.Errorf("error scanning analysis: %w", err)
		}
		a.Result = []byte(resultJSON)
		analyses = append(analyses, a)
	}
	return analyses, rows.Err()
}

func (c *SQLiteClient) TotalAnalyses() (int, error) {
	var count int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM analyses").Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting analyses: %w", err)
	}
	return count, nil
}
