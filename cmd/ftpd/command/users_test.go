package command

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonzalop/ftpd/internal/config"
)

func TestPrintUsers(t *testing.T) {
	color.NoColor = true

	cfg := &config.Config{
		Admin: &config.User{Name: "root", Password: "hunter2"},
		Users: []config.User{
			{Name: "anonymous"},
			{Name: "alice", Password: "wonderland"},
		},
	}

	var out bytes.Buffer
	require.NoError(t, printUsers(&out, cfg))

	lines := strings.Split(out.String(), "\n")
	row := func(name string) string {
		for _, l := range lines {
			if strings.Contains(l, name) {
				return l
			}
		}
		return ""
	}

	assert.Contains(t, row("root"), "admin")
	assert.Contains(t, row("root"), "required")
	assert.Contains(t, row("anonymous"), "none")
	assert.Contains(t, row("alice"), "user")
	assert.NotContains(t, out.String(), "hunter2")
	assert.NotContains(t, out.String(), "wonderland")
}

func TestCredentials(t *testing.T) {
	cfg := &config.Config{
		Admin: &config.User{Name: "root", Password: "pw"},
		Users: []config.User{{Name: "anonymous"}},
	}
	creds := credentials(cfg)

	acct, isAdmin, ok := creds.Lookup("root")
	require.True(t, ok)
	assert.True(t, isAdmin)
	assert.Equal(t, "pw", acct.Password)

	_, isAdmin, ok = creds.Lookup("anonymous")
	require.True(t, ok)
	assert.False(t, isAdmin)
	assert.Equal(t, 2, creds.Len())
}

func TestResolvePaths(t *testing.T) {
	rootDir, configFile = "/srv/ftp", ""
	defer func() { rootDir, configFile = "", "" }()

	root, cfgPath, err := resolvePaths()
	require.NoError(t, err)
	assert.Equal(t, "/srv/ftp", root)
	assert.Equal(t, "/srv/ftp/config.ini", cfgPath)

	configFile = "/etc/ftpd.ini"
	_, cfgPath, err = resolvePaths()
	require.NoError(t, err)
	assert.Equal(t, "/etc/ftpd.ini", cfgPath)
}
