package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// ChannelName はデータベースのトリガーが通知を送るLISTENチャネル名。
const ChannelName = "table_changes"

// AllTables は通知対象となる全テーブル。
var AllTables = []string{TableProfiles, TableItems, TableSavedItems, TableReports, TableSalesHistory}

const pingInterval = 90 * time.Second

// Listener はPostgreSQLのLISTEN/NOTIFYで受け取った変更通知をHubに流す。
type Listener struct {
	databaseURL string
	hub         *Hub
}

// NewListener はListenerを生成する。
func NewListener(databaseURL string, hub *Hub) *Listener {
	return &Listener{databaseURL: databaseURL, hub: hub}
}

// Run はctxがキャンセルされるまで変更通知を受信し続ける。
func (l *Listener) Run(ctx context.Context) error {
	listener := pq.NewListener(l.databaseURL, 10*time.Second, time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				slog.Warn("change listener connection event",
					slog.Int("event", int(ev)),
					slog.String("error", err.Error()),
				)
			}
		},
	)
	defer listener.Close()

	if err := listener.Listen(ChannelName); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", ChannelName, err)
	}

	slog.Info("change listener started", slog.String("channel", ChannelName))

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("change listener stopped")
			return nil
		case n := <-listener.Notify:
			l.dispatch(n)
		case <-ticker.C:
			go func() {
				if err := listener.Ping(); err != nil {
					slog.Warn("change listener ping failed", slog.String("error", err.Error()))
				}
			}()
		}
	}
}

// dispatch は1件の通知をHubに配信する。
// nilは再接続を意味し、その間の通知が失われた可能性があるため全テーブルの変更として扱う。
func (l *Listener) dispatch(n *pq.Notification) {
	if n == nil {
		for _, table := range AllTables {
			l.hub.Publish(Event{Table: table, Op: OpUpdate})
		}
		return
	}

	e, err := ParseEvent(n.Extra)
	if err != nil {
		slog.Warn("ignoring malformed change notification", slog.String("error", err.Error()))
		return
	}
	l.hub.Publish(e)
}
