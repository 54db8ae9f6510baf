package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"webchat/internal/browser"
	"webchat/internal/config"
	"webchat/internal/stats"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your webchat installation",
		Long: `Verifies that webchat's configuration, browser, site profile, telemetry
database and relay port are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("webchat doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed, failed, warned := 0, 0, 0

			// 1. Config file
			var cfg *config.Config
			if _, err := os.Stat(cfgPath); err != nil {
				printWarn("Config file", fmt.Sprintf("not found at %s, using defaults", cfgPath))
				warned++
				cfg = config.Defaults()
				expandDefaults(cfg)
			} else {
				printPass("Config file", cfgPath)
				passed++
				loaded, err := config.Load(cfgPath)
				if err != nil {
					printFail("Config validation", err.Error())
					failed++
					fmt.Printf("\n%d passed, %d failed\n", passed, failed)
					return fmt.Errorf("invalid config")
				}
				printPass("Config validation", "valid")
				passed++
				cfg = loaded
			}

			// 2. Browser binary
			if cfg.Browser.ExecPath != "" {
				if _, err := os.Stat(cfg.Browser.ExecPath); err != nil {
					printFail("Browser", fmt.Sprintf("execPath not found: %s", cfg.Browser.ExecPath))
					failed++
				} else {
					printPass("Browser", cfg.Browser.ExecPath)
					passed++
				}
			} else if path, err := browser.FindBrowser(); err != nil {
				if cfg.Browser.Engine == string(browser.EngineRod) {
					printWarn("Browser", "none installed; rod will download Chromium on first run")
					warned++
				} else {
					printFail("Browser", err.Error())
					failed++
				}
			} else {
				printPass("Browser", path)
				passed++
			}

			// 3. Browser profile directory
			if err := os.MkdirAll(cfg.Browser.ProfileDir, 0o755); err != nil {
				printFail("Browser profile", err.Error())
				failed++
			} else if entries, _ := os.ReadDir(cfg.Browser.ProfileDir); len(entries) == 0 {
				printWarn("Browser profile", "empty; run 'webchat login' to sign in")
				warned++
			} else {
				printPass("Browser profile", cfg.Browser.ProfileDir)
				passed++
			}

			// 4. Site profile
			if prof, err := resolveProfile(cfg); err != nil {
				printFail("Site profile", err.Error())
				failed++
			} else {
				printPass("Site profile", fmt.Sprintf("%s (%d response rules)", prof.Name, len(prof.Rules)))
				passed++
			}

			// 5. Telemetry database
			if cfg.Stats.Enabled {
				if err := checkDatabase(cfg.Stats.DBPath); err != nil {
					printFail("Telemetry DB", err.Error())
					failed++
				} else {
					printPass("Telemetry DB", cfg.Stats.DBPath)
					passed++
				}
			}

			// 6. Relay port
			if err := checkPort(cfg.Relay.Addr()); err != nil {
				printWarn("Relay port", fmt.Sprintf("%s may be in use: %v", cfg.Relay.Addr(), err))
				warned++
			} else {
				printPass("Relay port", cfg.Relay.Addr()+" available")
				passed++
			}
			if cfg.Relay.AccessKey == "" {
				printWarn("Relay access key", "not set; 'webchat serve' will accept any caller")
				warned++
			}

			// 7. Log file
			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running webchat.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nwebchat should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! webchat is ready to run.\n")
			}
			return nil
		},
	}
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", stats.DSN(dbPath))
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

	return nil
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
