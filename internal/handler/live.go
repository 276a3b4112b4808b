package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hitoshi/semesterswap/internal/model"
	"github.com/hitoshi/semesterswap/internal/view"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameLength = 4096
)

// liveFrame はクライアントから送られる絞り込み変更。
type liveFrame struct {
	Category *string `json:"category"`
	Search   *string `json:"search"`
}

// liveClient は1つのWebSocket接続と1つのページのSynchronizerを結び付ける。
type liveClient struct {
	conn   *websocket.Conn
	view   *view.View
	userID string
}

func newLiveClient(conn *websocket.Conn, v *view.View, userID string) *liveClient {
	return &liveClient{conn: conn, view: v, userID: userID}
}

// run は接続が閉じられるまでスナップショットを送信し続ける。
// 接続終了時にSynchronizerの購読も解除される。
func (c *liveClient) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	watch := c.view.Sync.Watch()
	go func() {
		if err := watch(ctx); err != nil {
			slog.Warn("live sync stopped", slog.String("error", err.Error()))
		}
	}()

	if _, err := c.view.Sync.Load(ctx); err != nil {
		slog.Warn("live initial load incomplete",
			slog.String("page", string(c.view.Page)),
			slog.String("error", err.Error()),
		)
	}

	slog.Info("live connection opened",
		slog.String("page", string(c.view.Page)),
		slog.String("user_id", c.userID),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump(ctx)
		c.conn.Close()
	}()

	c.readPump(ctx)
	cancel()
	<-done

	slog.Info("live connection closed",
		slog.String("page", string(c.view.Page)),
		slog.String("user_id", c.userID),
	)
}

// readPump は絞り込み変更フレームを読み取り、Synchronizerに反映する。
func (c *liveClient) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxFrameLength)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("live connection read failed", slog.String("error", err.Error()))
			}
			return
		}

		var frame liveFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			continue
		}
		if frame.Category != nil {
			if !model.IsValidCategoryFilter(*frame.Category) {
				slog.Warn("live frame rejected",
					slog.String("user_id", c.userID),
					slog.String("category", *frame.Category),
				)
				continue
			}
			if _, err := c.view.Sync.SetCategory(ctx, *frame.Category); err != nil {
				slog.Warn("live category reload incomplete", slog.String("error", err.Error()))
			}
		}
		if frame.Search != nil {
			c.view.Sync.SetSearch(*frame.Search)
		}
	}
}

// writePump はスナップショットと定期的なpingを送信する。接続への書き込みはここだけで行う。
func (c *liveClient) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case snap := <-c.view.Sync.Updates():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(c.view.Present(snap)); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
