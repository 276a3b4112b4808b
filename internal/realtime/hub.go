// Package realtime はテーブル変更通知の購読と配信を提供する。
//
// 通知は差分ではなく「変更があった」というシグナルのみを運ぶ。
// 受信側は通知を受けたら対象データを全件再取得する。
package realtime

import (
	"fmt"
	"strings"
	"sync"
)

// Op は変更の種類を表す。
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
	// OpAny はすべての変更種別に一致する購読条件。
	OpAny Op = "*"
)

// 通知対象のテーブル名。
const (
	TableProfiles     = "profiles"
	TableItems        = "items"
	TableSavedItems   = "saved_items"
	TableReports      = "reports"
	TableSalesHistory = "sales_history"
)

// Event は1件の変更通知。
type Event struct {
	Table string
	Op    Op
}

// ParseEvent は "<table>:<op>" 形式のペイロードをEventに変換する。
func ParseEvent(payload string) (Event, error) {
	table, op, ok := strings.Cut(payload, ":")
	if !ok || table == "" {
		return Event{}, fmt.Errorf("invalid change payload: %q", payload)
	}
	switch Op(op) {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return Event{}, fmt.Errorf("invalid change operation: %q", op)
	}
	return Event{Table: table, Op: Op(op)}, nil
}

// Subscription はHubへの購読。Cから通知を受け取る。
// Cのバッファは1で、未処理の通知がある間に届いた通知は捨てられる。
// 受信側は全件再取得するため、捨てられた通知の内容は次の再取得に含まれる。
type Subscription struct {
	C <-chan Event

	c      chan Event
	tables map[string]struct{}
	ops    map[Op]struct{}
	hub    *Hub
	once   sync.Once
}

func (s *Subscription) matches(e Event) bool {
	if _, ok := s.tables[e.Table]; !ok {
		return false
	}
	if _, ok := s.ops[OpAny]; ok {
		return true
	}
	_, ok := s.ops[e.Op]
	return ok
}

// Close は購読を解除する。複数回呼び出しても安全。
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s)
}

// Hub は変更通知を購読者に配信する。
type Hub struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	onEvent func(Event)
}

// NewHub は新しいHubを生成する。onEventがnilでなければ配信のたびに呼ばれる。
func NewHub(onEvent func(Event)) *Hub {
	return &Hub{
		subs:    make(map[*Subscription]struct{}),
		onEvent: onEvent,
	}
}

// Subscribe は指定テーブルへの購読を登録する。opsを省略した場合はすべての変更種別を購読する。
func (h *Hub) Subscribe(tables []string, ops ...Op) *Subscription {
	c := make(chan Event, 1)
	s := &Subscription{
		C:      c,
		c:      c,
		tables: make(map[string]struct{}, len(tables)),
		ops:    make(map[Op]struct{}),
		hub:    h,
	}
	for _, t := range tables {
		s.tables[t] = struct{}{}
	}
	if len(ops) == 0 {
		ops = []Op{OpAny}
	}
	for _, op := range ops {
		s.ops[op] = struct{}{}
	}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Unsubscribe は購読を解除し、Cを閉じる。
func (h *Hub) Unsubscribe(s *Subscription) {
	s.once.Do(func() {
		h.mu.Lock()
		delete(h.subs, s)
		h.mu.Unlock()
		close(s.c)
	})
}

// Publish は一致するすべての購読者へ通知する。ブロックしない。
func (h *Hub) Publish(e Event) {
	if h.onEvent != nil {
		h.onEvent(e)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs {
		if !s.matches(e) {
			continue
		}
		select {
		case s.c <- e:
		default:
		}
	}
}

// Len は現在の購読数を返す。
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
