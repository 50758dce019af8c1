package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/sugarscan/sugartrack/internal/auth"
	"github.com/sugarscan/sugartrack/internal/bootstrap"
	"github.com/sugarscan/sugartrack/internal/client"
	"github.com/sugarscan/sugartrack/internal/config"
	"github.com/sugarscan/sugartrack/internal/logging"
	"github.com/sugarscan/sugartrack/internal/storage"
	"github.com/sugarscan/sugartrack/internal/version"
)

func main() {
	app := newApp(os.Stdout)
	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "sugartrack: %v\n", err)
		os.Exit(1)
	}
}

// env is built once per invocation from the loaded config and global flags.
type env struct {
	cfg    config.ServiceConfig
	logger zerolog.Logger
	closer io.Closer
	out    io.Writer
}

func newApp(out io.Writer) *cli.Command {
	var e env
	e.out = out

	return &cli.Command{
		Name:    "sugartrack",
		Usage:   "operate and talk to a sugartrack server",
		Version: version.Info(),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "root", Value: ".", Usage: "directory containing config/"},
			&cli.StringFlag{Name: "server", Usage: "server base URL (defaults to base_url from config)", Sources: cli.EnvVars("SUGARTRACK_SERVER")},
			&cli.StringFlag{Name: "token-file", Value: defaultTokenPath(), Usage: "where login stores the session token"},
			&cli.BoolFlag{Name: "json", Usage: "print raw JSON instead of text"},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Args().First() == "init" {
				e.logger = zerolog.Nop()
				return ctx, nil
			}
			cfg, err := config.LoadServiceConfig(cmd.String("root"))
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			logger, closer, err := logging.New(logging.Options{
				Level:   cfg.LogLevel,
				File:    cfg.LogFileCLI,
				Service: "sugartrack",
			})
			if err != nil {
				return ctx, fmt.Errorf("init logging: %w", err)
			}
			e.cfg, e.logger, e.closer = cfg, logger, closer
			return ctx, nil
		},
		After: func(ctx context.Context, cmd *cli.Command) error {
			if e.closer != nil {
				return e.closer.Close()
			}
			return nil
		},
		Commands: []*cli.Command{
			initCommand(&e),
			registerCommand(&e),
			loginCommand(&e),
			profileCommand(&e),
			consumeCommand(&e),
			statusCommand(&e),
			historyCommand(&e),
			scanCommand(&e),
			productCommand(&e),
			gradeCommand(&e),
			tokenCommand(&e),
			seedCommand(&e),
			{
				Name:  "version",
				Usage: "print build information",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Fprintln(e.out, version.FullInfo())
					return nil
				},
			},
		},
	}
}

func initCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "scaffold config/setting.ini and config/<env>/sugartrack.ini",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env", Value: "dev"},
			&cli.StringFlag{Name: "http-address", Value: ":8080"},
			&cli.StringFlag{Name: "driver", Value: config.DriverSQLite, Usage: "sqlite or postgres"},
			&cli.StringFlag{Name: "dsn", Usage: "postgres connection string"},
			&cli.StringFlag{Name: "data-dir", Usage: "directory for sqlite databases"},
			&cli.StringFlag{Name: "auth-secret", Usage: "HMAC secret for session tokens"},
			&cli.FloatFlag{Name: "sugar-limit", Usage: "default daily limit in grams"},
			&cli.StringFlag{Name: "seed-file", Usage: "catalog YAML loaded at startup"},
			&cli.BoolFlag{Name: "force", Usage: "overwrite existing files"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			opts := bootstrap.InitOptions{
				Root:           cmd.String("root"),
				Environment:    cmd.String("env"),
				HTTPAddress:    cmd.String("http-address"),
				DatabaseDriver: cmd.String("driver"),
				DatabaseDSN:    cmd.String("dsn"),
				DataDir:        cmd.String("data-dir"),
				AuthSecret:     cmd.String("auth-secret"),
				SugarLimit:     cmd.Float("sugar-limit"),
				SeedFile:       cmd.String("seed-file"),
				Force:          cmd.Bool("force"),
			}
			if err := bootstrap.Init(opts); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "wrote config for environment %q under %s/config\n", opts.Environment, opts.Root)
			return nil
		},
	}
}

func registerCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "create an account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Required: true},
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{Name: "password", Required: true, Sources: cli.EnvVars("SUGARTRACK_PASSWORD")},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, err := e.client(cmd, false)
			if err != nil {
				return err
			}
			if err := c.Register(ctx, cmd.String("name"), cmd.String("email"), cmd.String("password")); err != nil {
				return err
			}
			fmt.Fprintln(e.out, "User created successfully")
			return nil
		},
	}
}

func loginCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "sign in and store the session token",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{Name: "password", Required: true, Sources: cli.EnvVars("SUGARTRACK_PASSWORD")},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, err := e.client(cmd, false)
			if err != nil {
				return err
			}
			session, err := c.Login(ctx, cmd.String("email"), cmd.String("password"))
			if err != nil {
				return err
			}
			path := cmd.String("token-file")
			if err := saveToken(path, session.Token); err != nil {
				return err
			}
			e.logger.Debug().Str("token_file", path).Int64("user_id", session.User.ID).Msg("session stored")
			if cmd.Bool("json") {
				return printJSON(e.out, session)
			}
			fmt.Fprintf(e.out, "logged in as %s (expires %s)\n", session.User.Name, session.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
}

func profileCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "show or update the signed-in user's profile",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name"},
			&cli.IntFlag{Name: "age"},
			&cli.FloatFlag{Name: "height"},
			&cli.FloatFlag{Name: "weight"},
			&cli.FloatFlag{Name: "limit", Usage: "daily sugar limit in grams"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, err := e.client(cmd, true)
			if err != nil {
				return err
			}

			var update client.ProfileUpdate
			changed := false
			if cmd.IsSet("name") {
				v := cmd.String("name")
				update.Name, changed = &v, true
			}
			if cmd.IsSet("age") {
				v := int(cmd.Int("age"))
				update.Age, changed = &v, true
			}
			if cmd.IsSet("height") {
				v := cmd.Float("height")
				update.Height, changed = &v, true
			}
			if cmd.IsSet("weight") {
				v := cmd.Float("weight")
				update.Weight, changed = &v, true
			}
			if cmd.IsSet("limit") {
				v := cmd.Float("limit")
				update.Limit, changed = &v, true
			}

			var user client.User
			if changed {
				user, err = c.UpdateProfile(ctx, update)
			} else {
				user, err = c.Profile(ctx)
			}
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				return printJSON(e.out, user)
			}
			fmt.Fprintf(e.out, "%s <%s>\n  age %d, height %g, weight %g\n  daily limit %gg\n",
				user.Name, user.Email, user.Age, user.Height, user.Weight, user.SugarLimit)
			return nil
		},
	}
}

func consumeCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:      "consume",
		Usage:     "add grams of sugar to today's total",
		ArgsUsage: "<grams>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "date", Usage: "record against YYYY-MM-DD instead of today"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			grams, err := parseGrams(cmd.Args().First())
			if err != nil {
				return err
			}
			c, err := e.client(cmd, true)
			if err != nil {
				return err
			}
			rec, err := c.Consume(ctx, grams, cmd.String("date"))
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				return printJSON(e.out, rec)
			}
			fmt.Fprintf(e.out, "total %gg on %s\n", rec.ConsumedSugar, rec.RecordDate)
			return nil
		},
	}
}

func statusCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show today's total against the daily limit",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, err := e.client(cmd, true)
			if err != nil {
				return err
			}
			st, err := c.DailyStatus(ctx)
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				return printJSON(e.out, st)
			}
			fmt.Fprintf(e.out, "%s: %gg of %gg on %s", st.UserName, st.ConsumedSugar, st.SugarLimit, st.RecordDate)
			if st.Exceeded {
				fmt.Fprintln(e.out, " (limit exceeded)")
			} else {
				fmt.Fprintf(e.out, " (%gg left)\n", st.Remaining)
			}
			return nil
		},
	}
}

func historyCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "list scanned products, or show one scan",
		ArgsUsage: "[scan-id]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, err := e.client(cmd, true)
			if err != nil {
				return err
			}
			if arg := cmd.Args().First(); arg != "" {
				var id int64
				if _, err := fmt.Sscan(arg, &id); err != nil {
					return fmt.Errorf("invalid scan id %q", arg)
				}
				entry, err := c.HistoryEntry(ctx, id)
				if err != nil {
					return err
				}
				if cmd.Bool("json") {
					return printJSON(e.out, entry)
				}
				printEntry(e.out, entry)
				return nil
			}

			entries, err := c.History(ctx)
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				return printJSON(e.out, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(e.out, "There is no current history")
				return nil
			}
			for _, entry := range entries {
				printEntry(e.out, entry)
			}
			return nil
		},
	}
}

func scanCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:      "scan",
		Usage:     "record a product scan",
		ArgsUsage: "<barcode>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			barcode := strings.TrimSpace(cmd.Args().First())
			if barcode == "" {
				return fmt.Errorf("barcode is required")
			}
			c, err := e.client(cmd, true)
			if err != nil {
				return err
			}
			entry, err := c.Scan(ctx, barcode)
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				return printJSON(e.out, entry)
			}
			printEntry(e.out, entry)
			return nil
		},
	}
}

func productCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:      "product",
		Usage:     "look up a product by barcode",
		ArgsUsage: "<barcode>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			barcode := strings.TrimSpace(cmd.Args().First())
			if barcode == "" {
				return fmt.Errorf("barcode is required")
			}
			c, err := e.client(cmd, true)
			if err != nil {
				return err
			}
			p, err := c.Product(ctx, barcode)
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				return printJSON(e.out, p)
			}
			fmt.Fprintf(e.out, "%s %s: %gg sugar, grade %s\n", p.Barcode, p.Name, p.SugarGrams, p.GradeID)
			if len(p.Recommendations) > 0 {
				fmt.Fprintf(e.out, "  try instead: %s\n", strings.Join(p.Recommendations, ", "))
			}
			return nil
		},
	}
}

func gradeCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:      "grade",
		Usage:     "describe a sugar grade",
		ArgsUsage: "<grade-id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := strings.TrimSpace(cmd.Args().First())
			if id == "" {
				return fmt.Errorf("grade id is required")
			}
			c, err := e.client(cmd, true)
			if err != nil {
				return err
			}
			g, err := c.Grade(ctx, id)
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				return printJSON(e.out, g)
			}
			fmt.Fprintf(e.out, "grade %s (%s): up to %gg. %s\n", g.ID, g.Label, g.MaxSugarGrams, g.Description)
			return nil
		},
	}
}

func tokenCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "session token utilities",
		Commands: []*cli.Command{
			{
				Name:  "issue",
				Usage: "sign a token offline with the configured secret",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "user-id", Required: true},
					&cli.DurationFlag{Name: "ttl", Usage: "defaults to token_ttl from config"},
					&cli.BoolFlag{Name: "save", Usage: "also write the token to --token-file"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					gate := auth.NewGate(e.cfg.AuthSecret, e.cfg.TokenTTL)
					token, expires, err := gate.IssueToken(int64(cmd.Int("user-id")), cmd.Duration("ttl"))
					if err != nil {
						return err
					}
					e.logger.Info().Int64("user_id", int64(cmd.Int("user-id"))).Time("expires_at", expires).Msg("token issued")
					if cmd.Bool("save") {
						if err := saveToken(cmd.String("token-file"), token); err != nil {
							return err
						}
					}
					fmt.Fprintln(e.out, token)
					return nil
				},
			},
		},
	}
}

func seedCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:      "seed",
		Usage:     "load grades and products from a catalog YAML file",
		ArgsUsage: "[file]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := firstNonEmpty(cmd.Args().First(), e.cfg.CatalogSeedFile)
			if path == "" {
				return fmt.Errorf("no catalog file given and catalog_seed_file is unset")
			}
			stores, err := storage.Open(e.cfg)
			if err != nil {
				return err
			}
			defer stores.Close()
			if err := stores.SeedCatalog(ctx, path, e.logger); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "catalog seeded from %s\n", path)
			return nil
		},
	}
}

// client builds an API client for the target server. withToken loads the
// stored session token and fails early when there is none.
func (e *env) client(cmd *cli.Command, withToken bool) (*client.Client, error) {
	base := firstNonEmpty(cmd.String("server"), e.cfg.BaseURL)
	c, err := client.New(base, &http.Client{Timeout: 15 * time.Second})
	if err != nil {
		return nil, err
	}
	c.SetLogger(e.logger)
	if withToken {
		token, err := loadToken(cmd.String("token-file"))
		if err != nil {
			return nil, err
		}
		c.SetToken(token)
	}
	return c, nil
}

func printEntry(w io.Writer, entry client.HistoryEntry) {
	fmt.Fprintf(w, "#%d %s %s %gg grade %s at %s\n",
		entry.ScanID, entry.Barcode, entry.ProductName, entry.SugarGrams, entry.GradeID,
		entry.ScannedAt.Local().Format("2006-01-02 15:04"))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
