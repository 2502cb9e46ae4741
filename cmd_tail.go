package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Cypher-0-shift/JurAI/internal/domain"
)

var (
	tailAddr string
	tailKey  string
)

// tailCmd prints the live update feed of a running "jurywatch serve".
var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print trace updates from a running jurywatch serve",
	RunE:  runTail,
}

func init() {
	tailCmd.Flags().StringVar(&tailAddr, "addr", "", "Websocket address (default: ws://localhost:<server.http_port>/v1/session/stream)")
	tailCmd.Flags().StringVar(&tailKey, "key", "", "Only follow the session with this key")
}

// tailClient reads the update feed of one connection.
type tailClient struct {
	conn *websocket.Conn
	out  io.Writer
}

func dialTail(ctx context.Context, addr, key string) (*tailClient, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}
	if key != "" {
		q := u.Query()
		q.Set("key", key)
		u.RawQuery = q.Encode()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &tailClient{conn: conn, out: os.Stdout}, nil
}

func (c *tailClient) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}

// run prints messages until the connection closes.
func (c *tailClient) run() error {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		fmt.Fprintln(c.out, formatFeedMessage(data))
	}
}

// formatFeedMessage renders one feed message. The first message of a
// connection is a session view, the rest are updates.
func formatFeedMessage(data []byte) string {
	var u domain.Update
	if err := json.Unmarshal(data, &u); err != nil || u.Kind == "" {
		var view struct {
			Key   string              `json:"key"`
			Phase domain.SessionPhase `json:"phase"`
			Trace domain.TraceState   `json:"trace"`
		}
		if err := json.Unmarshal(data, &view); err == nil && view.Key != "" {
			return fmt.Sprintf("[%s] %s, %d entries, %q", view.Key, view.Phase, view.Trace.EntryCount(), view.Trace.Headline)
		}
		return strings.TrimSpace(string(data))
	}

	ts := time.UnixMilli(u.Ts).Format("15:04:05")
	switch u.Kind {
	case domain.UpdateThought:
		if u.Entry == nil {
			break
		}
		if u.Entry.Source == domain.SourceHistory {
			return fmt.Sprintf("%s [%s] %s (history): %s", ts, u.Key, u.Agent, u.Entry.Text)
		}
		return fmt.Sprintf("%s [%s] %s: %s", ts, u.Key, u.Agent, u.Entry.Text)
	case domain.UpdateHeadline:
		return fmt.Sprintf("%s [%s] %s", ts, u.Key, u.Headline)
	case domain.UpdateActive:
		agent := string(u.Agent)
		if agent == "" {
			agent = "none"
		}
		return fmt.Sprintf("%s [%s] active: %s", ts, u.Key, agent)
	case domain.UpdatePhase:
		return fmt.Sprintf("%s [%s] phase: %s", ts, u.Key, u.Phase)
	}
	return fmt.Sprintf("%s [%s] %s", ts, u.Key, u.Kind)
}

func runTail(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := tailAddr
	if addr == "" {
		addr = fmt.Sprintf("ws://localhost:%d/v1/session/stream", cfg.Server.HTTPPort)
	}

	client, err := dialTail(ctx, addr, tailKey)
	if err != nil {
		return err
	}
	client.out = cmd.OutOrStdout()
	logger.Debug("connected to update feed", zap.String("addr", addr))

	go func() {
		<-ctx.Done()
		client.Close()
	}()

	if err := client.run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
