package mysql

import (
	"fmt"
	"strconv"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/config"
)

// DefaultPort returns the default MySQL port.
func DefaultPort() int {
	return 3306
}

// buildDSN renders the driver DSN. Session variables make the connection
// read-only and bound each SELECT by max_execution_time.
func buildDSN(cfg *datasource.Config) string {
	port := cfg.Port
	if port == 0 {
		port = DefaultPort()
	}

	dc := mysqldrv.NewConfig()
	dc.User = cfg.User
	dc.Passwd = cfg.Password
	dc.Net = "tcp"
	dc.Addr = fmt.Sprintf("%s:%d", config.ResolveHostForDocker(cfg.Host), port)
	dc.DBName = cfg.Database
	dc.ParseTime = true
	dc.Timeout = cfg.ConnectTimeout

	switch cfg.SSLMode {
	case "", "disable":
	case "require":
		dc.TLSConfig = "skip-verify"
	default:
		dc.TLSConfig = "true"
	}

	dc.Params = map[string]string{
		"transaction_read_only": "1",
	}
	if cfg.StatementTimeout > 0 {
		dc.Params["max_execution_time"] = strconv.FormatInt(int64(cfg.StatementTimeout/time.Millisecond), 10)
	}
	return dc.FormatDSN()
}
