package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mr-tron/base58"
)

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription confirmation.
	SubscribeTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
	}
}

// subscription tracks a confirmed transaction subscription.
type subscription struct {
	ch     chan *TransactionUpdate
	filter TransactionFilter
}

// WSClient implements Subscriber using gorilla/websocket. It reconnects with
// exponential backoff and resubscribes active filters after a reconnect.
type WSClient struct {
	endpoint string
	config   WSClientConfig

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// mu guards subs and pending.
	mu      sync.Mutex
	subs    map[int64]*subscription
	pending map[uint64]chan int64 // request ID -> subscription ID

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// NewWSClient creates a WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	c := &WSClient{
		endpoint: endpoint,
		config:   cfg,
		subs:     make(map[int64]*subscription),
		pending:  make(map[uint64]chan int64),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// connect establishes the WebSocket connection.
func (c *WSClient) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// wsRequest is a JSON-RPC 2.0 subscription request.
type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// wsSubscribeResponse confirms a subscription with its ID.
type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  int64  `json:"result"`
}

// wsNotification is a transactionNotification message.
type wsNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  *struct {
		Subscription int64      `json:"subscription"`
		Result       wireUpdate `json:"result"`
	} `json:"params"`
}

// wireUpdate is the transport's JSON shape for one transaction update.
type wireUpdate struct {
	Slot        json.Number `json:"slot"`
	Signature   string      `json:"signature"`
	Transaction *struct {
		Message *struct {
			AccountKeys  []string `json:"accountKeys"`
			Instructions []struct {
				ProgramIDIndex uint32 `json:"programIdIndex"`
				Accounts       []int  `json:"accounts"`
				Data           string `json:"data"`
			} `json:"instructions"`
		} `json:"message"`
	} `json:"transaction"`
}

// subscribeRequest builds the transactionSubscribe request for a filter.
func subscribeRequest(reqID uint64, filter TransactionFilter) wsRequest {
	txFilter := map[string]interface{}{
		"failed": false,
	}
	if len(filter.AccountsInclude) > 0 {
		txFilter["accountsInclude"] = filter.AccountsInclude
	}

	return wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "transactionSubscribe",
		Params: []interface{}{
			txFilter,
			map[string]string{
				"commitment": "processed",
				"encoding":   "json",
			},
		},
	}
}

// SubscribeTransactions subscribes to transactions matching the filter.
func (c *WSClient) SubscribeTransactions(ctx context.Context, filter TransactionFilter) (<-chan *TransactionUpdate, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("client closed")
	}

	subID, err := c.subscribe(ctx, filter)
	if err != nil {
		return nil, err
	}

	// Large buffer absorbs bursts; the reader blocks rather than drop.
	ch := make(chan *TransactionUpdate, 10000)
	c.mu.Lock()
	c.subs[subID] = &subscription{ch: ch, filter: filter}
	c.mu.Unlock()

	return ch, nil
}

// subscribe sends a subscribe request and waits for the subscription ID.
func (c *WSClient) subscribe(ctx context.Context, filter TransactionFilter) (int64, error) {
	reqID := c.requestID.Add(1)
	req := subscribeRequest(reqID, filter)

	confirmCh := make(chan int64, 1)
	c.mu.Lock()
	c.pending[reqID] = confirmCh
	c.mu.Unlock()

	removePending := func() {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
	}

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		removePending()
		return 0, fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()

	if err != nil {
		removePending()
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case subID := <-confirmCh:
		return subID, nil
	case <-time.After(c.config.SubscribeTimeout):
		removePending()
		return 0, fmt.Errorf("subscription timeout after %v", c.config.SubscribeTimeout)
	case <-c.done:
		return 0, fmt.Errorf("client closed")
	case <-ctx.Done():
		removePending()
		return 0, ctx.Err()
	}
}

// Close closes the WebSocket connection and all subscription channels.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.mu.Lock()
	for id, sub := range c.subs {
		close(sub.ch)
		delete(c.subs, id)
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

// readLoop reads messages from the socket and dispatches to subscribers.
func (c *WSClient) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			if !c.reconnecting.Swap(true) {
				go c.reconnect(reconnectDelay)
			}

			reconnectDelay *= 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = c.config.ReconnectDelay

		c.handleMessage(message)
	}
}

// pingLoop sends ping frames to keep the connection alive.
func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

// reconnect re-establishes the connection and resubscribes active filters.
func (c *WSClient) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		// Will retry on the next read error.
		return
	}

	c.resubscribeAll()
}

// resubscribeAll renews every active subscription after a reconnect, keeping
// the existing delivery channels.
func (c *WSClient) resubscribeAll() {
	c.mu.Lock()
	active := make(map[int64]*subscription, len(c.subs))
	for id, sub := range c.subs {
		active[id] = sub
	}
	c.mu.Unlock()

	for oldID, sub := range active {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		newID, err := c.subscribe(ctx, sub.filter)
		cancel()

		if err != nil {
			// Keep the old mapping; a later reconnect retries.
			continue
		}

		c.mu.Lock()
		delete(c.subs, oldID)
		c.subs[newID] = sub
		c.mu.Unlock()
	}
}

// handleMessage routes one incoming message.
func (c *WSClient) handleMessage(message []byte) {
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.Result > 0 {
		c.handleSubscribeResponse(&resp)
		return
	}

	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method == "transactionNotification" {
		c.handleTransactionNotification(&notif)
	}
}

// handleSubscribeResponse delivers a subscription ID to its waiter.
func (c *WSClient) handleSubscribeResponse(resp *wsSubscribeResponse) {
	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.mu.Unlock()

	if ok {
		select {
		case ch <- resp.Result:
		default:
		}
	}
}

// handleTransactionNotification decodes and dispatches one update.
func (c *WSClient) handleTransactionNotification(notif *wsNotification) {
	if notif.Params == nil {
		return
	}

	c.mu.Lock()
	sub, ok := c.subs[notif.Params.Subscription]
	c.mu.Unlock()
	if !ok {
		return
	}

	update := decodeUpdate(&notif.Params.Result, sub.filter.Name)

	// Block until delivered; events are never dropped here.
	select {
	case sub.ch <- update:
	case <-c.done:
	}
}

// decodeUpdate converts the wire JSON shape into a TransactionUpdate.
// Fields that fail base58 decoding are left empty; downstream filtering
// treats malformed updates as non-matching.
func decodeUpdate(w *wireUpdate, filterName string) *TransactionUpdate {
	update := &TransactionUpdate{
		Slot: w.Slot.String(),
	}
	if filterName != "" {
		update.Filters = []string{filterName}
	}

	if w.Transaction == nil || w.Transaction.Message == nil {
		return update
	}

	info := &TransactionInfo{}
	if sig, err := base58.Decode(w.Signature); err == nil {
		info.Signature = sig
	}

	msg := &TransactionMessage{
		AccountKeys:  make([][]byte, 0, len(w.Transaction.Message.AccountKeys)),
		Instructions: make([]CompiledInstruction, 0, len(w.Transaction.Message.Instructions)),
	}

	for _, key := range w.Transaction.Message.AccountKeys {
		decoded, err := base58.Decode(key)
		if err != nil {
			decoded = nil
		}
		msg.AccountKeys = append(msg.AccountKeys, decoded)
	}

	for _, ins := range w.Transaction.Message.Instructions {
		accounts := make([]byte, len(ins.Accounts))
		for i, idx := range ins.Accounts {
			accounts[i] = byte(idx)
		}

		data, err := base58.Decode(ins.Data)
		if err != nil {
			data = nil
		}

		msg.Instructions = append(msg.Instructions, CompiledInstruction{
			ProgramIDIndex: ins.ProgramIDIndex,
			Accounts:       accounts,
			Data:           data,
		})
	}

	info.Message = msg
	update.Transaction = info
	return update
}

var _ Subscriber = (*WSClient)(nil)
