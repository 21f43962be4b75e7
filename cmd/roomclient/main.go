package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/1Yie/infinite-brain-sub001/internal/client"
	"github.com/1Yie/infinite-brain-sub001/internal/config"
	"github.com/1Yie/infinite-brain-sub001/internal/listener"
	"github.com/1Yie/infinite-brain-sub001/internal/logging"
	"github.com/1Yie/infinite-brain-sub001/internal/protocol"
	"github.com/1Yie/infinite-brain-sub001/internal/roomgate"
	"github.com/1Yie/infinite-brain-sub001/internal/session"
)

func main() {
	os.Exit(start())
}

// start returns the exit code so deferred cleanup runs before os.Exit.
func start() int {
	mode := flag.String("mode", string(protocol.ModeGuessDraw), "room type: guess-draw, color-clash or whiteboard")
	roomID := flag.String("room", "", "room id")
	user := flag.String("user", "", "display name (overrides ROOMCLIENT_USERNAME)")
	flag.Parse()

	cfg, err := config.LoadClient(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	if *user != "" {
		cfg.Username = *user
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := options(cfg, logger)
	switch protocol.Mode(*mode) {
	case protocol.ModeGuessDraw:
		err = join(ctx, client.NewGuessDrawRoom(opts), *roomID, os.Stdin, os.Stdout)
	case protocol.ModeColorClash:
		err = join(ctx, client.NewColorClashRoom(opts), *roomID, os.Stdin, os.Stdout)
	case protocol.ModeWhiteboard:
		err = join(ctx, client.NewWhiteboardRoom(opts), *roomID, os.Stdin, os.Stdout)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		logger.Error("roomclient stopped", zap.Error(err))
		return 1
	}
	return 0
}

func options(cfg config.Client, logger *zap.Logger) client.Options {
	opts := client.Options{
		BaseURL:           cfg.ServerURL,
		UserID:            cfg.UserID,
		Username:          cfg.Username,
		RetryDelay:        cfg.RetryDelay,
		MaxAttempts:       cfg.MaxAttempts,
		HeartbeatInterval: cfg.Heartbeat,
		CheckTimeout:      cfg.CheckTimeout,
		Logger:            logger,
		Redirect: func(res roomgate.Result) {
			fmt.Fprintf(os.Stderr, "cannot join room: %s\n", res.Message)
		},
		OnStatus: func(roomID string, st session.Status) {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", roomID, st)
		},
	}
	if cfg.Backoff == config.BackoffExponential {
		opts.Backoff = session.ExponentialBackoff(cfg.RetryDelay, cfg.BackoffMax)
	}
	return opts
}

// join mounts roomID, prints every inbound frame as JSON and treats each
// input line as a chat message or a slash command.
func join[Out, In protocol.Message](ctx context.Context, r *client.Room[Out, In], roomID string, in io.Reader, out io.Writer) error {
	sess, err := r.Mount(ctx, roomID)
	if err != nil {
		return err
	}
	defer r.Unmount()

	sess.Subscribe(listener.Func(func(m In) {
		data, err := protocol.Encode(m)
		if err != nil {
			return
		}
		fmt.Fprintln(out, string(data))
	}))

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sess.Done():
			return errors.New("session closed")
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			command(r, sess, strings.TrimSpace(line), out)
		}
	}
}

func command[Out, In protocol.Message](r *client.Room[Out, In], sess *session.Session[Out, In], line string, out io.Writer) {
	board := r.Board()
	switch line {
	case "":
	case "/reconnect":
		sess.Reconnect()
	case "/undo", "/redo", "/clear":
		if board == nil {
			fmt.Fprintln(out, "this room has no canvas")
			return
		}
		switch line {
		case "/undo":
			if _, ok := board.Undo(board.Author()); !ok {
				fmt.Fprintln(out, "nothing to undo")
			}
		case "/redo":
			if !board.Redo(board.Author()) {
				fmt.Fprintln(out, "nothing to redo")
			}
		case "/clear":
			board.Clear()
		}
	default:
		if err := r.SendChat(line); err != nil {
			fmt.Fprintln(out, err)
		}
	}
}
