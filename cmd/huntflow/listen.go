package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/wis-software/hubot-huntflow-reloaded/internal/config"
)

func newListenCmd() *cobra.Command {
	var (
		addr    string
		channel string
		raw     bool
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print messages published on the notification channel",
		Long: `listen subscribes to the Redis channel the server publishes on and prints
every message, one per line. It is the receiving end a chat client would
run, useful to check a deployment by hand.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return invalidConfig(err)
			}
			if addr == "" {
				addr = cfg.RedisAddr
			}
			if channel == "" {
				channel = cfg.ChannelName
			}
			if addr == "" {
				return invalidConfig(errors.New("no Redis address: set REDIS_ADDR or pass --addr"))
			}

			client := redis.NewClient(&redis.Options{
				Addr:     addr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
			defer client.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return listen(ctx, client, channel, raw, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Redis address (default: REDIS_ADDR)")
	cmd.Flags().StringVar(&channel, "channel", "", "channel name (default: CHANNEL_NAME)")
	cmd.Flags().BoolVar(&raw, "raw", false, "print payloads without reformatting")
	return cmd
}

// listen prints payloads received on channel until ctx is done.
func listen(ctx context.Context, client redis.UniversalClient, channel string, raw bool, out io.Writer) error {
	sub := client.Subscribe(ctx, channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return errors.Wrapf(err, "subscribe to %s", channel)
	}
	fmt.Fprintf(out, "listening on %s\n", channel)

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			fmt.Fprintln(out, formatPayload(msg.Payload, raw))
		}
	}
}

// formatPayload compacts a JSON payload onto one line. Anything that is not
// JSON is printed unchanged.
func formatPayload(payload string, raw bool) string {
	if raw {
		return payload
	}
	var v any
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return payload
	}
	data, err := json.Marshal(v)
	if err != nil {
		return payload
	}
	return string(data)
}
