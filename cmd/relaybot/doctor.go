package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"relaybot/internal/config"
	"relaybot/internal/store"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your relaybot installation",
		Long: `Verifies that relaybot's configuration, database, rule files, quota
backend and ops port are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("relaybot doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'relaybot init' to create a default configuration.\n")
				return fmt.Errorf("config file missing")
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				fmt.Printf("\n%d passed, 1 failed\n", passed)
				return err
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Bot token
			if cfg.Discord.Token == "" {
				printFail("Discord token", "not set (discord.token or RELAYBOT_DISCORD_TOKEN)")
				failed++
			} else {
				printPass("Discord token", "configured")
				passed++
			}

			// 4. Database and schema
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if detail, err := checkDatabase(ctx, cfg.Store.DBPath); err != nil {
				printFail("Database", err.Error())
				failed++
			} else {
				printPass("Database", detail)
				passed++
			}

			// 5. Rule files
			if cfg.General.RulesDir != "" {
				rules, err := store.LoadRulesDir(cfg.General.RulesDir, logger)
				if err != nil {
					printFail("Rule files", err.Error())
					failed++
				} else {
					printPass("Rule files", fmt.Sprintf("%d rule(s) in %s", len(rules), cfg.General.RulesDir))
					passed++
				}
			}

			// 6. Quota backend
			if cfg.Quota.Backend == "redis" {
				if err := checkRedis(ctx, cfg.Quota.RedisURL); err != nil {
					printFail("Redis quota", err.Error())
					failed++
				} else {
					printPass("Redis quota", "reachable")
					passed++
				}
			} else {
				printPass("Quota backend", "sqlite")
				passed++
			}

			// 7. Ops port
			if cfg.Ops.Enabled {
				if err := checkPort(cfg.Ops.Addr); err != nil {
					printWarn("Ops address", fmt.Sprintf("%s may be in use: %v", cfg.Ops.Addr, err))
					warned++
				} else {
					printPass("Ops address", cfg.Ops.Addr+" available")
					passed++
				}
			}

			// 8. Log file writable
			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			if !cfg.Discord.UseWebhooks {
				printWarn("Webhooks", "disabled; forwarded messages are posted under the bot's name")
				warned++
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running relaybot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nrelaybot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! relaybot is ready to run.\n")
			}
			return nil
		},
	}
}

// checkDatabase opens the store, which applies pending migrations, and reports the schema version.
func checkDatabase(ctx context.Context, dbPath string) (string, error) {
	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return "", err
	}
	defer st.Close()

	if err := st.Ping(ctx); err != nil {
		return "", fmt.Errorf("cannot ping: %w", err)
	}
	v, err := store.SchemaVersion(st.DB())
	if err != nil {
		return "", fmt.Errorf("schema version: %w", err)
	}
	return fmt.Sprintf("%s (schema v%d)", dbPath, v), nil
}

func checkRedis(ctx context.Context, url string) error {
	q, err := store.NewRedisQuota(ctx, url)
	if err != nil {
		return err
	}
	defer q.Close()
	return q.Ping(ctx)
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
