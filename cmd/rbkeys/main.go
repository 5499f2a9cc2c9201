package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"

	"github.com/rs/zerolog"

	"github.com/edvin/sshtrust/internal/client"
	"github.com/edvin/sshtrust/internal/config"
	"github.com/edvin/sshtrust/internal/identity"
	"github.com/edvin/sshtrust/internal/logging"
	"github.com/edvin/sshtrust/internal/metrics"
	"github.com/edvin/sshtrust/internal/sshkey"
	"github.com/edvin/sshtrust/internal/storage"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(os.Stderr, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "generate":
		fs := flag.NewFlagSet("generate", flag.ExitOnError)
		bits := fs.Int("bits", sshkey.DefaultBits, "RSA key size in bits")
		backend := fs.String("backend", "", "Storage backend override (file, memory, postgres, s3)")
		fs.Parse(os.Args[2:])

		mgr, err := newManager(ctx, cfg, logger, *backend)
		if err != nil {
			fatal(err)
		}
		key, err := mgr.GenerateUserKey(*bits)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("%s key ready: %s\n", key.Algorithm(), key.Fingerprint())

	case "import":
		fs := flag.NewFlagSet("import", flag.ExitOnError)
		backend := fs.String("backend", "", "Storage backend override (file, memory, postgres, s3)")
		fs.Parse(os.Args[2:])

		if fs.NArg() < 1 {
			fmt.Fprintln(os.Stderr, "Usage: rbkeys import [-backend name] <keyfile>")
			os.Exit(1)
		}
		raw, err := os.ReadFile(fs.Arg(0))
		if err != nil {
			fatal(err)
		}
		mgr, err := newManager(ctx, cfg, logger, *backend)
		if err != nil {
			fatal(err)
		}
		key, err := mgr.ImportUserKey(raw)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("imported %s key: %s\n", key.Algorithm(), key.Fingerprint())

	case "delete":
		fs := flag.NewFlagSet("delete", flag.ExitOnError)
		backend := fs.String("backend", "", "Storage backend override (file, memory, postgres, s3)")
		fs.Parse(os.Args[2:])

		mgr, err := newManager(ctx, cfg, logger, *backend)
		if err != nil {
			fatal(err)
		}
		if err := mgr.DeleteUserKey(); err != nil {
			fatal(err)
		}
		fmt.Println("user key deleted")

	case "show":
		fs := flag.NewFlagSet("show", flag.ExitOnError)
		backend := fs.String("backend", "", "Storage backend override (file, memory, postgres, s3)")
		fs.Parse(os.Args[2:])

		mgr, err := newManager(ctx, cfg, logger, *backend)
		if err != nil {
			fatal(err)
		}
		key := mgr.UserKey()
		if key == nil {
			fmt.Println("no user key stored")
			return
		}
		fmt.Printf("algorithm:   %s\n", key.Algorithm())
		fmt.Printf("fingerprint: %s\n", key.Fingerprint())
		fmt.Printf("authorized:  %t\n", mgr.IsAuthorized(key))
		fmt.Println()
		fmt.Print(key.PublicDisplay())

	case "hosts":
		fs := flag.NewFlagSet("hosts", flag.ExitOnError)
		backend := fs.String("backend", "", "Storage backend override (file, memory, postgres, s3)")
		fs.Parse(os.Args[2:])

		c, err := newClient(ctx, cfg, logger, *backend)
		if err != nil {
			fatal(err)
		}
		for _, entry := range c.HostKeys().Entries() {
			fmt.Printf("%s %s %s\n",
				strings.Join(entry.Hostnames, ","),
				entry.Key.Type(),
				ssh.FingerprintLegacyMD5(entry.Key))
		}

	case "check":
		fs := flag.NewFlagSet("check", flag.ExitOnError)
		user := fs.String("l", "", "User to authenticate as")
		password := fs.String("password", "", "Password to authenticate with")
		fs.Parse(os.Args[2:])

		if fs.NArg() < 1 {
			fmt.Fprintln(os.Stderr, "Usage: rbkeys check [-l user] [-password pw] <host[:port]>")
			os.Exit(1)
		}
		if err := client.CheckHost(ctx, cfg, logger, fs.Arg(0), *user, *password); err != nil {
			fatal(err)
		}
		fmt.Printf("%s: ok\n", fs.Arg(0))

	case "scan":
		fs := flag.NewFlagSet("scan", flag.ExitOnError)
		metricsAddr := fs.String("metrics-addr", "", "Serve Prometheus metrics on this address during the scan")
		workers := fs.Int("workers", 8, "Concurrent host checks")
		fs.Parse(os.Args[2:])

		if err := runScan(ctx, cfg, logger, *metricsAddr, *workers); err != nil {
			fatal(err)
		}

	case "migrate":
		fs := flag.NewFlagSet("migrate", flag.ExitOnError)
		dir := fs.String("dir", "migrations", "Directory containing goose migrations")
		fs.Parse(os.Args[2:])

		if cfg.DatabaseURL == "" {
			fmt.Fprintln(os.Stderr, "Error: database_url is required for migrate")
			os.Exit(1)
		}
		if err := storage.RunMigrations(cfg.DatabaseURL, *dir); err != nil {
			fatal(err)
		}
		fmt.Println("migrations applied")

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func newManager(ctx context.Context, cfg *config.Config, logger zerolog.Logger, backend string) (*identity.Manager, error) {
	st, err := storage.New(ctx, cfg.StorageConfig(backend), logger)
	if err != nil {
		return nil, err
	}
	return identity.NewManager(st, cfg.Namespace, logger), nil
}

func newClient(ctx context.Context, cfg *config.Config, logger zerolog.Logger, backend string) (*client.Client, error) {
	st, err := storage.New(ctx, cfg.StorageConfig(backend), logger)
	if err != nil {
		return nil, err
	}
	return client.NewWithStorage(cfg, logger, st, nil)
}

// runScan checks every known host concurrently, reporting per-host
// results on stdout. Failures do not abort the remaining checks.
func runScan(ctx context.Context, cfg *config.Config, logger zerolog.Logger, metricsAddr string, workers int) error {
	c, err := newClient(ctx, cfg, logger, "")
	if err != nil {
		return err
	}

	if metricsAddr != "" {
		srv := metrics.NewServer(metricsAddr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer srv.Close()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, entry := range c.HostKeys().Entries() {
		for _, hostname := range entry.Hostnames {
			g.Go(func() error {
				session, err := c.Connect(gctx, hostname, client.ConnectOptions{})
				if err != nil {
					fmt.Printf("%s: %v\n", hostname, err)
					return nil
				}
				session.Close()
				fmt.Printf("%s: ok\n", hostname)
				return nil
			})
		}
	}
	return g.Wait()
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage:
  rbkeys generate [-bits n] [-backend name]
  rbkeys import [-backend name] <keyfile>
  rbkeys delete [-backend name]
  rbkeys show [-backend name]
  rbkeys hosts [-backend name]
  rbkeys check [-l user] [-password pw] <host[:port]>
  rbkeys scan [-metrics-addr addr] [-workers n]
  rbkeys migrate [-dir path]

Commands:
  generate   Create and store an RSA user key (no-op when one exists)
  import     Replace the stored user key with a PEM private key file
  delete     Remove the stored user key
  show       Print the key fingerprint, public key, and authorized status
  hosts      List known-host entries
  check      Connect to a host once and report the result
  scan       Check all known hosts concurrently
  migrate    Apply database migrations for the postgres backend`)
}
