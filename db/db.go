package db

import (
	"fmt"

	"grain-classification/models"
	"grain-classification/utils"
)

// Client persists classification records. Two backends exist: SQLite for
// single-box deployments next to the device, MongoDB when the dashboard is
// shared across sites.
type Client interface {
	Close() error
	StoreAnalysis(analysis *models.Analysis) error
	RecentAnalyses(limit int) ([]models.Analysis, error)
	TotalAnalyses() (int, error)
}

// NewClient picks the backend from DB_TYPE (sqlite | mongo).
func NewClient() (Client, error) {
	dbType := utils.GetEnv("DB_TYPE", "sqlite")
	switch dbType {
	case "sqlite":
		dsn := utils.GetEnv("SQLITE_PATH", "data/analyses.db")
		return NewSQLiteClient(dsn)
	case "mongo":
		uri := utils.GetEnv("MONGO_URI", "mongodb://localhost:27017")
		return NewMongoClient(uri)
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE %q", dbType)
	}
}
