package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"
)

// Listener はPostgreSQLのLISTEN/NOTIFYをコレクション単位の
// 変更イベントチャネルに変換する。
//
// トリガー（todoman_notify_change）が1つのNOTIFYチャネルに全コレクションの
// イベントをJSONで流し、Listenerがコレクション別に購読者へ配分する。
// 購読者チャネルはバッファ付きで、満杯の場合イベントは破棄される。
// 破棄されたイベントの代償は冗長な再フェッチ1回分に留まる（購読側は
// イベントを契機に全量フェッチするため、取りこぼしで状態が壊れることはない）。
type Listener struct {
	channel string
	bufSize int
	pl      *pq.Listener

	mu     sync.Mutex
	subs   map[int64]*subscriber
	nextID int64
	closed bool

	done chan struct{}
}

type subscriber struct {
	collection string
	ch         chan ChangeEvent
}

// ListenerConfig はListenerの接続設定。
type ListenerConfig struct {
	DatabaseURL  string
	Channel      string
	MinReconnect time.Duration
	MaxReconnect time.Duration
	BufferSize   int
}

// NewListener はListenerを生成し、NOTIFYチャネルのLISTENを開始する。
// 接続断はpq.Listenerが自動で再接続する。再接続中のイベントは失われるが、
// 購読側の全量フェッチ方式により次のイベントで追いつく。
func NewListener(cfg ListenerConfig) (*Listener, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 16
	}

	pl := pq.NewListener(cfg.DatabaseURL, cfg.MinReconnect, cfg.MaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				slog.Error("change feed listener event",
					slog.Int("event_type", int(ev)),
					slog.String("error", err.Error()),
				)
			}
		})

	if err := pl.Listen(cfg.Channel); err != nil {
		pl.Close()
		return nil, fmt.Errorf("failed to listen on channel %s: %w", cfg.Channel, err)
	}

	l := &Listener{
		channel: cfg.Channel,
		bufSize: cfg.BufferSize,
		pl:      pl,
		subs:    make(map[int64]*subscriber),
		done:    make(chan struct{}),
	}

	go l.run()

	return l, nil
}

// Subscribe は指定コレクションの変更イベントチャネルと購読解除関数を返す。
// 解除関数は複数回呼んでも安全で、解除後チャネルはクローズされる。
func (l *Listener) Subscribe(collection string) (<-chan ChangeEvent, func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, nil, fmt.Errorf("listener is closed")
	}

	l.nextID++
	id := l.nextID
	sub := &subscriber{
		collection: collection,
		ch:         make(chan ChangeEvent, l.bufSize),
	}
	l.subs[id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if s, ok := l.subs[id]; ok {
				delete(l.subs, id)
				close(s.ch)
			}
		})
	}

	return sub.ch, cancel, nil
}

// Close はLISTENを停止し、全購読者チャネルをクローズする。
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.done)
	for id, sub := range l.subs {
		delete(l.subs, id)
		close(sub.ch)
	}
	l.mu.Unlock()

	return l.pl.Close()
}

// run はNOTIFYを受信し購読者へ配分するループ。
func (l *Listener) run() {
	for {
		select {
		case <-l.done:
			return
		case n := <-l.pl.Notify:
			// 再接続直後はnilが届く。見逃したイベントの補償は購読側の
			// 全量フェッチに任せる。
			if n == nil {
				continue
			}
			ev, err := parseChangeEvent(n.Extra)
			if err != nil {
				slog.Warn("failed to parse change event payload",
					slog.String("payload", n.Extra),
					slog.String("error", err.Error()),
				)
				continue
			}
			l.dispatch(ev)
		}
	}
}

// dispatch はイベントを該当コレクションの購読者へ配る。
func (l *Listener) dispatch(ev ChangeEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, sub := range l.subs {
		if sub.collection != ev.Collection {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			slog.Warn("change event dropped: subscriber buffer full",
				slog.String("collection", ev.Collection),
				slog.String("action", ev.Action),
			)
		}
	}
}

// parseChangeEvent はNOTIFYペイロードのJSONをChangeEventに変換する。
func parseChangeEvent(payload string) (ChangeEvent, error) {
	var ev ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ChangeEvent{}, fmt.Errorf("invalid change event payload: %w", err)
	}
	if ev.Collection == "" || ev.Action == "" {
		return ChangeEvent{}, fmt.Errorf("change event payload missing collection or action")
	}
	return ev, nil
}

// compile-time interface check
var _ ChangeFeed = (*Listener)(nil)
