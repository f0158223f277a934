package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alicebob/miniredis/v2"
	"github.com/eventdash/authsync"
	"github.com/eventdash/authsync/internal/replay"
	"github.com/eventdash/authsync/roles"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>",
	Short: "Replay one scenario file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		cfg, err := authsync.LoadConfig(configPath)
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open scenario: %w", err)
		}
		defer f.Close()
		sc, err := replay.Decode(f)
		if err != nil {
			return err
		}

		addr := redisAddr
		if addr == "" {
			addr = os.Getenv("REDIS_ADDR")
		}
		client, cleanup, err := openRedis(addr, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer cleanup()

		out := cmd.OutOrStdout()
		if sc.Name != "" {
			fmt.Fprintf(out, "scenario: %s\n", sc.Name)
		}
		res, err := replay.Run(cmd.Context(), sc, replay.Options{
			Config: cfg,
			Store:  roles.NewRedisSource(client, cfg.Roles.RedisPrefix),
			Logger: logger,
			Out:    out,
		})
		if err != nil {
			return err
		}
		printSummary(out, res)
		return nil
	},
}

func openRedis(addr string, log io.Writer) (redis.UniversalClient, func(), error) {
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		if err := client.Ping(context.Background()).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", addr, err)
		}
		fmt.Fprintf(log, "using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Fprintf(log, "using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func printSummary(w io.Writer, res replay.Result) {
	user := res.User
	if user == "" {
		user = "(signed out)"
	}
	fmt.Fprintln(w, "---")
	fmt.Fprintf(w, "user:        %s\n", user)
	fmt.Fprintf(w, "roles:       [%s]\n", strings.Join(res.Roles, ","))
	fmt.Fprintf(w, "location:    %s\n", res.Location)
	fmt.Fprintf(w, "navigations: %d\n", len(res.Navigations))
	fmt.Fprintf(w, "tripped:     %t\n", res.Tripped)
}
