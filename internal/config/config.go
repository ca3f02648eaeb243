// Package config loads the ftpd INI configuration file.
//
// A configuration looks like:
//
//	[server]
//	addr = 127.0.0.1
//	port = 1234
//
//	[admin]
//	name = admin
//	password = secret
//
//	[user.anonymous]
//	password =
//
// Every "user.<name>" section declares one account; an empty password lets
// the account log in without PASS. The optional [logging], [limits],
// [passive] and [metrics] sections tune the server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/go-playground/validator.v9"
	"gopkg.in/ini.v1"
)

const (
	DefaultFileName = "config.ini"
	DefaultAddr     = "127.0.0.1"
	DefaultPort     = 1234

	userSectionPrefix = "user."
)

// User is one configured account.
type User struct {
	Name     string `validate:"required"`
	Password string
}

// Config is the parsed configuration file.
type Config struct {
	Server struct {
		Addr string `ini:"addr" validate:"required"`
		Port int    `ini:"port" validate:"min=1,max=65535"`
	} `ini:"server"`
	Logging struct {
		Debug bool   `ini:"debug"`
		File  string `ini:"file"`
	} `ini:"logging"`
	Limits struct {
		Bandwidth      int64 `ini:"bandwidth" validate:"min=0"`
		MaxConnections int   `ini:"max_connections" validate:"min=0"`
	} `ini:"limits"`
	Passive struct {
		Host string `ini:"host"`
	} `ini:"passive"`
	Metrics struct {
		Addr string `ini:"addr"`
	} `ini:"metrics"`

	Admin *User  `ini:"-"`
	Users []User `ini:"-" validate:"dive"`

	// Path is the file the configuration was read from.
	Path string `ini:"-"`
}

// ListenAddr returns the host:port the server listens on.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Addr, strconv.Itoa(c.Server.Port))
}

var loadOptions = ini.LoadOptions{
	// Passwords may contain '#' and ';'.
	IgnoreInlineComment: true,
}

// Load reads the configuration at path. A missing file is first created with
// the default content: one passwordless "anonymous" user listening on
// 127.0.0.1:1234.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := WriteDefault(path); err != nil {
			return nil, err
		}
		log.Info().Msgf("No config file found, created %s.", path)
	} else if err != nil {
		return nil, fmt.Errorf("failed to access config file %s: %w", path, err)
	}

	iniData, err := ini.LoadSources(loadOptions, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	log.Debug().Msgf("Using config file %s.", path)

	cfg, err := parse(iniData)
	if err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

func parse(iniData *ini.File) (*Config, error) {
	cfg := &Config{}
	cfg.Server.Addr = DefaultAddr
	cfg.Server.Port = DefaultPort

	if err := iniData.StrictMapTo(cfg); err != nil {
		return nil, err
	}

	if iniData.HasSection("admin") {
		sec := iniData.Section("admin")
		cfg.Admin = &User{
			Name:     sec.Key("name").String(),
			Password: sec.Key("password").String(),
		}
	}

	for _, sec := range iniData.Sections() {
		name, ok := strings.CutPrefix(sec.Name(), userSectionPrefix)
		if !ok {
			continue
		}
		cfg.Users = append(cfg.Users, User{
			Name:     name,
			Password: sec.Key("password").String(),
		})
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return err
	}

	seen := make(map[string]bool)
	if cfg.Admin != nil {
		seen[cfg.Admin.Name] = true
	}
	for _, u := range cfg.Users {
		if seen[u.Name] {
			return fmt.Errorf("duplicate account %q", u.Name)
		}
		seen[u.Name] = true
	}
	if len(seen) == 0 {
		return errors.New("no accounts configured")
	}
	return nil
}

// WriteDefault writes the default configuration to path.
func WriteDefault(path string) error {
	f := ini.Empty()

	server, err := f.NewSection("server")
	if err != nil {
		return err
	}
	if _, err := server.NewKey("addr", DefaultAddr); err != nil {
		return err
	}
	if _, err := server.NewKey("port", strconv.Itoa(DefaultPort)); err != nil {
		return err
	}

	anonymous, err := f.NewSection(userSectionPrefix + "anonymous")
	if err != nil {
		return err
	}
	if _, err := anonymous.NewKey("password", ""); err != nil {
		return err
	}

	if err := f.SaveTo(path); err != nil {
		return fmt.Errorf("failed to write default config %s: %w", path, err)
	}
	return nil
}
