// Command hubctl drives a running hub through its dashboard channel.
//
//	hubctl [flags] call <event> [json-arg...]
//	hubctl [flags] emit <event> [json-arg...]
//	hubctl [flags] set <module> <key> <json-value>
//	hubctl [flags] watch
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/zeusync/hubdash/internal/core/observability/log"
	"github.com/zeusync/hubdash/internal/dashboard"
	"github.com/zeusync/hubdash/sdk/go/client"
)

func main() {
	cfg := client.DefaultClientConfig()
	pflag.StringVarP(&cfg.URL, "url", "u", cfg.URL, "websocket endpoint of the hub")
	pflag.StringVarP(&cfg.Namespace, "namespace", "n", cfg.Namespace, "dashboard scope")
	pflag.DurationVarP(&cfg.CallTimeout, "timeout", "t", cfg.CallTimeout, "time to wait for a call reply")
	user := pflag.String("user", "", "basic auth user")
	pass := pflag.String("pass", "", "basic auth password")
	verbose := pflag.BoolP("verbose", "v", false, "log client activity")
	pflag.Parse()

	if *user != "" {
		cfg.Header = basicAuthHeader(*user, *pass)
	}
	level := log.LevelWarn
	if *verbose {
		level = log.LevelDebug
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log.New(level), pflag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "hubctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg client.Config, logger log.Log, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing command, expected call, emit, set or watch")
	}

	c := client.NewClient(cfg, logger)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	switch cmd, rest := args[0], args[1:]; cmd {
	case "call":
		if len(rest) == 0 {
			return fmt.Errorf("call needs an event type")
		}
		result, err := c.Call(ctx, rest[0], parseArgs(rest[1:])...)
		if err != nil {
			return err
		}
		fmt.Println(string(result))
		return nil

	case "emit":
		if len(rest) == 0 {
			return fmt.Errorf("emit needs an event type")
		}
		if err := c.Relay(rest[0], parseArgs(rest[1:])...); err != nil {
			return err
		}
		// let the frame leave before the close frame
		time.Sleep(100 * time.Millisecond)
		return nil

	case "set":
		if len(rest) != 3 {
			return fmt.Errorf("set needs <module> <key> <json-value>")
		}
		var val any
		if err := json.Unmarshal([]byte(rest[2]), &val); err != nil {
			return fmt.Errorf("value: %w", err)
		}
		if err := c.UpdateModule(rest[0], rest[1], val); err != nil {
			return err
		}
		time.Sleep(100 * time.Millisecond)
		return nil

	case "watch":
		c.On(dashboard.EventHubEvent, func(data json.RawMessage) {
			fmt.Println(string(data))
		})
		select {
		case <-ctx.Done():
		case <-c.Done():
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func parseArgs(raw []string) []any {
	out := make([]any, 0, len(raw))
	for _, r := range raw {
		var v any
		if err := json.Unmarshal([]byte(r), &v); err != nil {
			// bare words are strings
			v = r
		}
		out = append(out, v)
	}
	return out
}
