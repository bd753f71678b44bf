package mssql

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/config"
)

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// buildConnectionString builds a sqlserver:// URL for SQL authentication.
// ssl_mode "disable" turns encryption off; "require" encrypts without
// verifying the certificate; anything else encrypts and verifies.
func buildConnectionString(cfg *datasource.Config) string {
	query := url.Values{}
	query.Add("database", cfg.Database)
	query.Add("app name", "ekaya-insights")

	switch cfg.SSLMode {
	case "disable":
		query.Add("encrypt", "disable")
	case "require", "":
		query.Add("encrypt", "true")
		query.Add("TrustServerCertificate", "true")
	default:
		query.Add("encrypt", "true")
	}

	if cfg.ConnectTimeout > 0 {
		query.Add("connection timeout", strconv.Itoa(int(cfg.ConnectTimeout.Seconds())))
		query.Add("dial timeout", strconv.Itoa(int(cfg.ConnectTimeout.Seconds())))
	}

	port := cfg.Port
	if port == 0 {
		port = DefaultPort()
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", config.ResolveHostForDocker(cfg.Host), port),
		RawQuery: query.Encode(),
	}
	return u.String()
}
