package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestResolveEnvVar(t *testing.T) {
	t.Setenv("OPSHUB_TEST_SECRET", "s3cret")

	cases := map[string]string{
		"${OPSHUB_TEST_SECRET}": "s3cret",
		"${OPSHUB_TEST_UNSET}":  "${OPSHUB_TEST_UNSET}",
		"plain":                 "plain",
	}
	for in, want := range cases {
		if got := resolveEnvVar(in); got != want {
			t.Errorf("resolveEnvVar(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := []byte("app:\n  name: test\n  env: default\njwt:\n  secret: abc\ncache:\n  defaultTTL: 5m\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}

	config = &Config{}
	if err := loadConfig(path); err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	defer func() { config = nil }()

	if config.App.Name != "test" {
		t.Errorf("app.name = %q", config.App.Name)
	}
	if config.Cache.DefaultTTL != 5*time.Minute {
		t.Errorf("cache.defaultTTL = %v", config.Cache.DefaultTTL)
	}
	if config.Cache.SweepInterval != time.Minute {
		t.Errorf("cache.sweepInterval default = %v", config.Cache.SweepInterval)
	}
	if config.Realtime.HeartbeatInterval != 30*time.Second {
		t.Errorf("realtime.heartbeatInterval default = %v", config.Realtime.HeartbeatInterval)
	}
	if config.Cache.Driver != "memory" {
		t.Errorf("cache.driver default = %q", config.Cache.Driver)
	}
}

func TestDatabaseDSN(t *testing.T) {
	c := DatabaseConfig{Driver: "sqlite"}
	if c.DSN() != ":memory:" {
		t.Errorf("empty sqlite dsn = %q", c.DSN())
	}
	c = DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, Username: "u", Password: "p", Database: "ops"}
	if c.DSN() != "host=db port=5432 user=u password=p dbname=ops sslmode=disable" {
		t.Errorf("postgres dsn = %q", c.DSN())
	}
}
