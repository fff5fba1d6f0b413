// Command sentinelctl runs one-off maintenance and administration tasks against
// the guard's database and cache.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/BradenHooton/sentinel/internal/app"
	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/BradenHooton/sentinel/internal/config"
	"github.com/BradenHooton/sentinel/internal/database"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/internal/services"
	pkglogger "github.com/BradenHooton/sentinel/pkg/logger"
)

const (
	cliActor       = "sentinelctl"
	commandTimeout = 5 * time.Minute
)

const usage = `usage: sentinelctl <command> [flags]

commands:
  migrate                          apply database migrations
  cleanup  --days N                purge attempts older than N days
  unblock  --ip ADDR | --email E   clear a block
  allow add --address A --kind K   add an access entry (specific, cidr, blocked)
  allow remove --address A         remove access entries for an address
  stats    --hours N               blocking and access list statistics
  check    --ip ADDR               resolve an address against the access list
  token    --subject S --role R    mint a bearer token for the API
`

var errUsage = errors.New("invalid usage")

// blockingAdmin is the part of the blocking engine the CLI drives
type blockingAdmin interface {
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
	UnblockIP(ctx context.Context, ip string) (bool, error)
	UnblockEmail(ctx context.Context, email string) (bool, error)
	GetBlockingStats(ctx context.Context, hours int) (*models.BlockingStats, error)
	IPStatus(ctx context.Context, ip string) (*models.BlockStatus, error)
}

// accessAdmin is the part of the access list service the CLI drives
type accessAdmin interface {
	AddEntry(ctx context.Context, input models.AccessEntryInput) (*models.OperationResult, error)
	RemoveAllowedIP(ctx context.Context, address string) (*models.OperationResult, error)
	GetStats(ctx context.Context) (*models.AccessStats, error)
	ResolveAccess(ctx context.Context, clientIP string) (*models.AccessDecision, error)
}

// backend is what a parsed command executes against
type backend struct {
	blocking    blockingAdmin
	access      accessAdmin
	gateEnabled func() bool
}

// env wires run to real infrastructure; tests substitute fakes.
type env struct {
	loadConfig func() (*config.Config, error)
	migrate    func(ctx context.Context, cfg *config.Config) error
	open       func(ctx context.Context, cfg *config.Config) (*backend, func(), error)
}

// action is a parsed command ready to run
type action func(ctx context.Context, b *backend, out io.Writer) error

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, productionEnv()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func productionEnv() env {
	return env{
		loadConfig: config.Load,
		migrate: func(ctx context.Context, cfg *config.Config) error {
			logger := pkglogger.New(os.Stderr, cfg.Server.LogLevel)
			db, err := database.NewConnection(&cfg.Database, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			return database.Migrate(ctx, db.Pool, logger)
		},
		open: func(ctx context.Context, cfg *config.Config) (*backend, func(), error) {
			logger := pkglogger.New(os.Stderr, cfg.Server.LogLevel)
			db, err := database.NewConnection(&cfg.Database, logger)
			if err != nil {
				return nil, nil, err
			}
			a, err := app.New(ctx, cfg, db, logger)
			if err != nil {
				db.Close()
				return nil, nil, err
			}
			closeFn := func() {
				_ = a.Close()
				db.Close()
			}
			return &backend{blocking: a.Blocking, access: a.AccessList, gateEnabled: a.Gate.IsEnabled}, closeFn, nil
		},
	}
}

func run(ctx context.Context, args []string, out io.Writer, e env) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return fmt.Errorf("%w: missing command", errUsage)
	}

	cfg, err := e.loadConfig()
	if err != nil {
		return err
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "token":
		return runToken(cfg, rest, out)
	case "migrate":
		ctx, cancel := context.WithTimeout(ctx, commandTimeout)
		defer cancel()
		return e.migrate(ctx, cfg)
	}

	act, err := parseCommand(cmd, rest, cfg)
	if err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(out, usage)
		}
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	b, closeFn, err := e.open(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	return act(ctx, b, out)
}

// parseCommand validates flags before any connection is opened.
func parseCommand(cmd string, args []string, cfg *config.Config) (action, error) {
	switch cmd {
	case "cleanup":
		return parseCleanup(args, cfg.Guard.RetentionDays)
	case "unblock":
		return parseUnblock(args)
	case "allow":
		return parseAllow(args)
	case "stats":
		return parseStats(args)
	case "check":
		return parseCheck(args)
	default:
		return nil, fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false
	fs.SetOutput(io.Discard)
	return fs
}

func runToken(cfg *config.Config, args []string, out io.Writer) error {
	fs := newFlagSet("token")
	subject := fs.StringP("subject", "s", "", "operator or service name")
	role := fs.StringP("role", "r", models.RoleService, "admin or service")
	ttl := fs.Duration("ttl", 0, "token lifetime (default ACCESS_TOKEN_EXPIRY)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	tm := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)
	token, err := tm.GenerateAccessToken(*subject, *role, *ttl)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, token)
	return nil
}

func parseCleanup(args []string, defaultDays int) (action, error) {
	fs := newFlagSet("cleanup")
	days := fs.IntP("days", "d", defaultDays, "retention in days")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *days < 1 || *days > services.MaxRetentionDays {
		return nil, fmt.Errorf("--days must be between 1 and %d", services.MaxRetentionDays)
	}

	return func(ctx context.Context, b *backend, out io.Writer) error {
		deleted, err := b.blocking.Cleanup(ctx, *days)
		if err != nil {
			return err
		}
		return printJSON(out, map[string]any{"deleted": deleted, "retention_days": *days})
	}, nil
}

func parseUnblock(args []string) (action, error) {
	fs := newFlagSet("unblock")
	ip := fs.String("ip", "", "address to unblock")
	email := fs.String("email", "", "email to unblock")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var unblock func(ctx context.Context, b *backend) (bool, error)
	switch {
	case *ip != "" && *email != "":
		return nil, fmt.Errorf("use either --ip or --email")
	case *ip != "":
		unblock = func(ctx context.Context, b *backend) (bool, error) { return b.blocking.UnblockIP(ctx, *ip) }
	case *email != "":
		unblock = func(ctx context.Context, b *backend) (bool, error) { return b.blocking.UnblockEmail(ctx, *email) }
	default:
		return nil, fmt.Errorf("--ip or --email is required")
	}

	return func(ctx context.Context, b *backend, out io.Writer) error {
		cleared, err := unblock(ctx, b)
		if err != nil {
			return err
		}
		return printJSON(out, map[string]any{"was_blocked": cleared})
	}, nil
}

func parseAllow(args []string) (action, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: allow expects add or remove", errUsage)
	}

	switch args[0] {
	case "add":
		fs := newFlagSet("allow add")
		address := fs.StringP("address", "a", "", "address or CIDR")
		kind := fs.StringP("kind", "k", models.AccessKindSpecific, "specific, cidr or blocked")
		description := fs.String("description", "", "free text")
		expiresIn := fs.Duration("expires-in", 0, "expire the entry after this duration")
		if err := fs.Parse(args[1:]); err != nil {
			return nil, err
		}
		if *address == "" {
			return nil, fmt.Errorf("--address is required")
		}
		if *expiresIn < 0 {
			return nil, fmt.Errorf("--expires-in must be positive")
		}

		return func(ctx context.Context, b *backend, out io.Writer) error {
			input := models.AccessEntryInput{
				Address:     *address,
				Kind:        *kind,
				Description: *description,
				CreatedBy:   cliActor,
			}
			if *expiresIn > 0 {
				at := time.Now().Add(*expiresIn)
				input.ExpiresAt = &at
			}

			result, err := b.access.AddEntry(ctx, input)
			if err != nil {
				return err
			}
			return printResult(out, result)
		}, nil

	case "remove":
		fs := newFlagSet("allow remove")
		address := fs.StringP("address", "a", "", "address or CIDR")
		if err := fs.Parse(args[1:]); err != nil {
			return nil, err
		}
		if *address == "" {
			return nil, fmt.Errorf("--address is required")
		}

		return func(ctx context.Context, b *backend, out io.Writer) error {
			result, err := b.access.RemoveAllowedIP(ctx, *address)
			if err != nil {
				return err
			}
			return printResult(out, result)
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown allow subcommand %q", errUsage, args[0])
	}
}

func parseStats(args []string) (action, error) {
	fs := newFlagSet("stats")
	hours := fs.Int("hours", 24, "reporting period in hours")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *hours < 1 || *hours > services.MaxStatsHours {
		return nil, fmt.Errorf("--hours must be between 1 and %d", services.MaxStatsHours)
	}

	return func(ctx context.Context, b *backend, out io.Writer) error {
		blocking, err := b.blocking.GetBlockingStats(ctx, *hours)
		if err != nil {
			return err
		}
		access, err := b.access.GetStats(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, map[string]any{"blocking": blocking, "access": access})
	}, nil
}

func parseCheck(args []string) (action, error) {
	fs := newFlagSet("check")
	ip := fs.String("ip", "", "client address")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *ip == "" {
		return nil, fmt.Errorf("--ip is required")
	}

	return func(ctx context.Context, b *backend, out io.Writer) error {
		decision, err := b.access.ResolveAccess(ctx, *ip)
		if err != nil {
			return err
		}
		status, err := b.blocking.IPStatus(ctx, *ip)
		if err != nil {
			return err
		}
		return printJSON(out, map[string]any{
			"access":       decision,
			"block":        status,
			"gate_enabled": b.gateEnabled(),
		})
	}, nil
}

func printResult(out io.Writer, result *models.OperationResult) error {
	if err := printJSON(out, result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("%s", result.Message)
	}
	return nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
