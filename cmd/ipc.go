package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rubiojr/yatra/pkg/ipc"
	"github.com/rubiojr/yatra/pkg/suggest"
	"github.com/rubiojr/yatra/pkg/voice"
	"github.com/urfave/cli/v3"
)

// IPCCommand creates the ipc command
func IPCCommand() *cli.Command {
	return &cli.Command{
		Name:  "ipc",
		Usage: "Serve the suggestion box over msgpack on stdin/stdout",
		Action: func(ctx context.Context, c *cli.Command) error {
			a, err := loadApp(c.String("config"))
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sess := ipc.NewSession(os.Stdin, os.Stdout)

			var ctrl *suggest.Controller
			adapter := a.newVoice(func(r voice.Result) { ctrl.HandleVoiceResult(r) })
			ctrl = suggest.New(a.dispatcher, a.history, adapter, suggest.Options{
				Popular:       a.cfg.Search.Popular,
				RecentHistory: a.cfg.History.Recent,
				Navigator:     sess,
				Notifier:      sess,
			})
			defer ctrl.Close()

			err = sess.Serve(ctx, ctrl)
			if err == context.Canceled {
				return nil
			}
			return err
		},
	}
}
