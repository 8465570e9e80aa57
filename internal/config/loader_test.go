package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/matchd/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		_ = os.Setenv("MATCHD_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.ReadyCheckSeconds, convey.ShouldEqual, 240)
				convey.So(cfg.ModeConfigs(), convey.ShouldHaveLength, 6)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("MATCHD_ADDR", ":8080")
			_ = os.Setenv("MATCHD_READY_CHECK_SECONDS", "60")
			_ = os.Setenv("MATCHD_STORE_DRIVER", "sqlite")
			_ = os.Setenv("MATCHD_K_FACTOR", "32")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.ReadyCheckSeconds, convey.ShouldEqual, 60)
				convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverSQLite)
				convey.So(cfg.KFactor, convey.ShouldEqual, 32)
				convey.So(cfg.TeardownSeconds, convey.ShouldEqual, 30)
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			tmpFile := createTempConfigFile(t, `
addr: ":9090"
no_show_penalty: 50
redis_addr: "localhost:6379"
modes:
  duel:
    roster_size: 2
  squad:
    roster_size: 8
    quorum: 5
`)
			_ = os.Setenv("MATCHD_CONFIG", tmpFile)
			_ = os.Setenv("MATCHD_NO_SHOW_PENALTY", "90")

			cfg, err := config.Load(ctx)

			convey.Convey("Then file values apply and env vars win over them", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.NoShowPenalty, convey.ShouldEqual, 90)
				convey.So(cfg.RedisAddr, convey.ShouldEqual, "localhost:6379")

				modes := cfg.ModeConfigs()
				convey.So(modes, convey.ShouldHaveLength, 2)
				convey.So(modes[1].RosterSize, convey.ShouldEqual, 8)
				convey.So(modes[1].Quorum, convey.ShouldEqual, 5)
			})
		})

		convey.Convey("When a .env file is present", func() {
			dotenv := filepath.Join(t.TempDir(), "test.env")
			content := "MATCHD_ADDR=:7070\nMATCHD_TEARDOWN_SECONDS=5\n"
			convey.So(os.WriteFile(dotenv, []byte(content), 0o600), convey.ShouldBeNil)
			_ = os.Setenv("MATCHD_ENV_FILE", dotenv)
			_ = os.Setenv("MATCHD_ADDR", ":6060")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it fills unset variables only", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":6060")
				convey.So(cfg.TeardownSeconds, convey.ShouldEqual, 5)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			_ = os.Setenv("MATCHD_CONFIG", "/non/existent/file.yaml")

			_, err := config.Load(ctx)

			convey.Convey("Then loading fails with ErrLoadConfig", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a value does not parse", func() {
			_ = os.Setenv("MATCHD_READY_CHECK_SECONDS", "soon")

			_, err := config.Load(ctx)

			convey.Convey("Then loading fails with ErrLoadConfig", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a value is out of range", func() {
			_ = os.Setenv("MATCHD_EVENT_WORKER_COUNT", "0")

			_, err := config.Load(ctx)

			convey.Convey("Then loading fails with ErrInvalidConfig", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		if name, _, _ := strings.Cut(kv, "="); strings.HasPrefix(name, "MATCHD_") {
			_ = os.Unsetenv(name)
		}
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "matchd.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
