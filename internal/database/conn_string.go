package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/langlink/internal/config"
)

const defaultSSLMode = "prefer"

// BuildConnString builds a postgres:// URL for the journal database.
// Credentials and the database name are escaped by net/url.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = defaultSSLMode
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Name,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}
