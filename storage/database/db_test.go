package database

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masomo/feeledger/core"
)

func Test_dataSourceName(t *testing.T) {
	conf := core.NewTestConfig()
	conf.Database = core.DatabaseConfig{
		Engine:        "postgres",
		Host:          "db",
		Port:          "5432",
		Name:          "fees",
		User:          "app",
		Password:      "p@ss word",
		AdminUser:     "postgres",
		AdminPassword: "root",
	}

	tests := []struct {
		name     string
		dbName   string
		admin    bool
		noTLS    bool
		wantUser string
		wantPwd  string
		wantSSL  string
	}{
		{"app user", "fees", false, false, "app", "p@ss word", "require"},
		{"admin user", "postgres", true, false, "postgres", "root", "require"},
		{"tls disabled", "fees", false, true, "app", "p@ss word", "disable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf.Database.DisableTLS = tt.noTLS
			u, err := url.Parse(dataSourceName(tt.dbName, tt.admin, conf))
			require.NoError(t, err)

			assert.Equal(t, "postgres", u.Scheme)
			assert.Equal(t, "db:5432", u.Host)
			assert.Equal(t, "/"+tt.dbName, u.Path)
			assert.Equal(t, tt.wantUser, u.User.Username())
			pwd, _ := u.User.Password()
			assert.Equal(t, tt.wantPwd, pwd)
			assert.Equal(t, tt.wantSSL, u.Query().Get("sslmode"))
			assert.Equal(t, "utc", u.Query().Get("timezone"))
		})
	}

	t.Run("admin falls back to the app user", func(t *testing.T) {
		conf.Database.AdminUser = ""
		u, err := url.Parse(dataSourceName("postgres", true, conf))
		require.NoError(t, err)
		assert.Equal(t, "app", u.User.Username())
	})
}
