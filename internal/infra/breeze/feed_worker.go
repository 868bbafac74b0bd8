package breeze

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"optiongate/internal/domain"

	"github.com/gorilla/websocket"
)

const (
	// DefaultWSURL is the production Breeze streaming host.
	DefaultWSURL = "wss://livestream.icicidirect.com"

	maxRetries  = 10
	readTimeout = 60 * time.Second
	dialTimeout = 10 * time.Second
)

// FeedWorker handles the Breeze push-feed WebSocket connection. It recovers
// dropped sockets with exponential backoff and replays the subscription set
// after every reconnect.
type FeedWorker struct {
	url     string
	signer  *Signer
	conn    *websocket.Conn
	mu      sync.RWMutex
	writeMu sync.Mutex
	active  bool
	handler domain.TickHandler
	subs    map[domain.SubscriptionKey]domain.FeedSubscription
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewFeedWorker creates a feed worker. The signer supplies the session
// token for the stream handshake.
func NewFeedWorker(url string, signer *Signer) *FeedWorker {
	if url == "" {
		url = DefaultWSURL
	}
	return &FeedWorker{
		url:    url,
		signer: signer,
		subs:   make(map[domain.SubscriptionKey]domain.FeedSubscription),
	}
}

// OnTicks installs the payload handler.
func (w *FeedWorker) OnTicks(h domain.TickHandler) {
	w.mu.Lock()
	w.handler = h
	w.mu.Unlock()
}

// Connect starts the connection loop.
func (w *FeedWorker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
	return nil
}

func (w *FeedWorker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			slog.Warn("feed connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
			delay := calculateFeedBackoff(retryCount)
			retryCount++
			if retryCount > maxRetries {
				retryCount = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		} else {
			retryCount = 0
			w.readLoop(ctx)
		}
	}
}

func (w *FeedWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	header := make(http.Header)

	conn, _, err := dialer.DialContext(ctx, w.url, header)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.active = true
	w.mu.Unlock()

	if err := w.authenticate(); err != nil {
		w.closeConnection()
		return err
	}
	if err := w.resubscribe(); err != nil {
		w.closeConnection()
		return err
	}

	slog.Info("feed connected", slog.Int("subs", w.subCount()))
	return nil
}

func (w *FeedWorker) authenticate() error {
	msg := map[string]string{
		"action":        "auth",
		"session_token": w.signer.Session(),
	}
	b, _ := json.Marshal(msg)
	return w.threadSafeWrite(websocket.TextMessage, b)
}

// resubscribe replays every registered instrument on a fresh socket.
func (w *FeedWorker) resubscribe() error {
	w.mu.RLock()
	subs := make([]domain.FeedSubscription, 0, len(w.subs))
	for _, s := range w.subs {
		subs = append(subs, s)
	}
	w.mu.RUnlock()

	for _, s := range subs {
		if err := w.writeSubscription("subscribe", s); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers the instrument and pushes the frame to the broker.
func (w *FeedWorker) Subscribe(sub domain.FeedSubscription) error {
	w.mu.Lock()
	w.subs[sub.Key()] = sub
	w.mu.Unlock()
	return w.writeSubscription("subscribe", sub)
}

// Unsubscribe removes the instrument. The frame is best effort; the
// registration is dropped regardless so a reconnect will not replay it.
func (w *FeedWorker) Unsubscribe(sub domain.FeedSubscription) error {
	w.mu.Lock()
	delete(w.subs, sub.Key())
	w.mu.Unlock()
	return w.writeSubscription("unsubscribe", sub)
}

func (w *FeedWorker) writeSubscription(action string, sub domain.FeedSubscription) error {
	msg := map[string]any{
		"action":              action,
		"stock_code":          sub.Symbol,
		"exchange_code":       sub.Exchange,
		"product_type":        "options",
		"expiry_date":         sub.Expiry,
		"strike_price":        fmt.Sprintf("%d", sub.Strike),
		"right":               sub.Right.BrokerRight(),
		"get_exchange_quotes": true,
	}
	b, _ := json.Marshal(msg)
	return w.threadSafeWrite(websocket.TextMessage, b)
}

func (w *FeedWorker) threadSafeWrite(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.conn == nil {
		return fmt.Errorf("no conn")
	}
	return w.conn.WriteMessage(msgType, data)
}

func (w *FeedWorker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Capture the conn once; a concurrent Disconnect may nil the field
		// between iterations. The captured socket at worst errors out.
		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			w.closeConnection()
			return
		}
		w.handleMessage(msg)
	}
}

// handleMessage decodes one socket frame. Frames carry either a single
// payload object or a batch; both are handed to the handler as a batch.
func (w *FeedWorker) handleMessage(msg []byte) {
	w.mu.RLock()
	handler := w.handler
	w.mu.RUnlock()
	if handler == nil {
		return
	}

	var batch []domain.RawTick
	if err := json.Unmarshal(msg, &batch); err != nil {
		var one domain.RawTick
		if json.Unmarshal(msg, &one) != nil || len(one) == 0 {
			return
		}
		batch = []domain.RawTick{one}
	}
	if len(batch) > 0 {
		handler(batch)
	}
}

// Active reports whether the socket is currently up.
func (w *FeedWorker) Active() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.active
}

func (w *FeedWorker) subCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.subs)
}

func (w *FeedWorker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.active = false
}

// Disconnect stops the connection loop and closes the socket.
func (w *FeedWorker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
}
