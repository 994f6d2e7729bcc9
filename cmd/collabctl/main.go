// Package main implements collabctl, a small probe client for the designsync
// relay. It opens one session, joins a room and prints every event it
// receives as a JSON line, which is enough to watch a room from a terminal
// or to smoke-test a deployment.
//
// Architecture:
//
//	┌────────────────────────────────────────┐
//	│               collabctl                │
//	├────────────────────────────────────────┤
//	│  dial /ws?token=...                    │
//	│  send join-room {roomId}               │
//	│  optional: lock-acquire, ping          │
//	│  print frames until --duration or ^C   │
//	└────────────────────────────────────────┘
//
// The token is either passed with --token or minted locally from --user and
// --secret (the relay's auth.jwt_secret), which is handy in development.
//
// Example usage:
//
//	collabctl watch --url ws://localhost:8080/ws \
//	  --user alice --secret "$DESIGNSYNC_AUTH_JWT_SECRET" \
//	  --room ds-42 --lock button-primary
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/dreamware/designsync/internal/auth"
	"github.com/dreamware/designsync/internal/protocol"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// probeOptions are the watch command's inputs.
type probeOptions struct {
	URL      string
	Token    string
	User     string
	Secret   string
	Room     string
	Lock     string
	Duration time.Duration
	Ping     bool
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "collabctl",
		Short:        "Probe client for the designsync relay",
		SilenceUsage: true,
	}

	var opts probeOptions
	watch := &cobra.Command{
		Use:   "watch",
		Short: "Join a room and print its events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runProbe(ctx, opts, cmd.OutOrStdout())
		},
	}
	f := watch.Flags()
	f.StringVar(&opts.URL, "url", "ws://localhost:8080/ws", "relay WebSocket URL")
	f.StringVar(&opts.Token, "token", "", "bearer token")
	f.StringVar(&opts.User, "user", "", "mint a token for this user (needs --secret)")
	f.StringVar(&opts.Secret, "secret", "", "relay jwt secret used with --user")
	f.StringVar(&opts.Room, "room", "", "room to join")
	f.StringVar(&opts.Lock, "lock", "", "resource to lock after joining")
	f.DurationVar(&opts.Duration, "duration", 0, "stop after this long (0 = until interrupted)")
	f.BoolVar(&opts.Ping, "ping", false, "send a ping after joining")
	_ = watch.MarkFlagRequired("room")

	root.AddCommand(watch)
	return root
}

func (o probeOptions) token() (string, error) {
	if o.Token != "" {
		return o.Token, nil
	}
	if o.User == "" || o.Secret == "" {
		return "", errors.New("either --token or both --user and --secret are required")
	}
	return auth.NewIssuer([]byte(o.Secret), nil).Issue(o.User, time.Hour)
}

// runProbe dials the relay, joins the room and copies every received frame
// to out, one per line.
func runProbe(ctx context.Context, opts probeOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var cancel context.CancelFunc
	if opts.Duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	token, err := opts.token()
	if err != nil {
		return err
	}
	u, err := url.Parse(opts.URL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}

	header := http.Header{"Authorization": {"Bearer " + token}}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("handshake refused (%d): %s", resp.StatusCode, string(body))
		}
		return fmt.Errorf("dial %s: %w", u, err)
	}
	defer conn.Close()

	if err := send(conn, protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: opts.Room}); err != nil {
		return err
	}
	if opts.Lock != "" {
		if err := send(conn, protocol.TypeLockAcquire, protocol.LockAcquire{ResourceID: opts.Lock}); err != nil {
			return err
		}
	}
	if opts.Ping {
		if err := send(conn, protocol.TypePing, protocol.Ping{}); err != nil {
			return err
		}
	}

	// Unblock ReadMessage when ctx ends.
	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if _, err := fmt.Fprintln(out, string(frame)); err != nil {
			return err
		}
	}
}

func send(conn *websocket.Conn, msgType string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.WriteJSON(protocol.Envelope{Type: msgType, Data: raw})
}
