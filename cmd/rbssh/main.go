package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/crypto/ssh"

	"github.com/edvin/sshtrust/internal/client"
	"github.com/edvin/sshtrust/internal/config"
	"github.com/edvin/sshtrust/internal/logging"
)

func main() {
	port := flag.Int("p", 0, "Port to connect to (overrides host:port)")
	login := flag.String("l", "", "User to log in as")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: rbssh [-p port] [-l user] [user@]host [command...]")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(os.Stderr, cfg)

	target := flag.Arg(0)
	user := *login
	if at := strings.LastIndex(target, "@"); at >= 0 {
		if user == "" {
			user = target[:at]
		}
		target = target[at+1:]
	}
	if *port > 0 {
		host, _, err := client.SplitHost(target)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid target")
		}
		target = net.JoinHostPort(host, strconv.Itoa(*port))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize SSH client")
	}

	session, err := c.Connect(ctx, target, client.ConnectOptions{User: user})
	if err != nil {
		logger.Error().Err(err).Str("host", target).Msg("connection failed")
		os.Exit(1)
	}
	defer session.Close()

	if flag.NArg() > 1 {
		err = session.Run(strings.Join(flag.Args()[1:], " "), os.Stdin, os.Stdout, os.Stderr)
	} else {
		err = session.Shell(os.Stdin, os.Stdout, os.Stderr)
	}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitStatus())
		}
		logger.Error().Err(err).Msg("remote command failed")
		os.Exit(1)
	}
}
