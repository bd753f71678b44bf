package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Driver kinds supported for query execution.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
	DriverMSSQL    = "mssql"
)

// DataSource is a target database that questions are answered against.
// Password is decrypted by the curation layer before it reaches the pipeline.
type DataSource struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	Driver          string     `json:"driver"`
	Host            string     `json:"host"`
	Port            int        `json:"port"`
	DatabaseName    string     `json:"database_name"`
	Username        string     `json:"username"`
	Password        string     `json:"-"`
	SSLMode         string     `json:"ssl_mode,omitempty"`
	IsActive        bool       `json:"is_active"`
	LastInspectedAt *time.Time `json:"last_inspected_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (d *DataSource) String() string {
	return fmt.Sprintf("%s (%s %s:%d/%s)", d.Name, d.Driver, d.Host, d.Port, d.DatabaseName)
}
