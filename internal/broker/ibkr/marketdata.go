package ibkr

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/wheelbot/internal/domain"
)

// quoteFields are the streaming field codes requested per subscription:
// last, bid, ask, volume, and prior close.
var quoteFields = []string{"31", "84", "86", "87", "7296"}

// quoteWait is the per-symbol budget for the first usable frame. Thin
// contracts may never tick inside it; those symbols map to nil.
const quoteWait = 5 * time.Second

// GetMarketData opens the gateway's streaming websocket and subscribes
// to each symbol in turn, waiting up to quoteWait for a quote frame. A
// symbol that times out or fails to resolve maps to a nil entry; only a
// connection-level failure aborts the batch.
func (b *Broker) GetMarketData(ctx context.Context, symbols []string) (map[string]*domain.Quote, error) {
	if err := b.requireConnected(); err != nil {
		return nil, fmt.Errorf("ibkr: get market data: %w", err)
	}

	quotes := make(map[string]*domain.Quote, len(symbols))
	for _, symbol := range symbols {
		quotes[symbol] = nil
	}
	if len(symbols) == 0 {
		return quotes, nil
	}

	conn, err := b.dialStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("ibkr: get market data: %w", err)
	}
	defer conn.Close()

	for _, symbol := range symbols {
		conid, err := b.resolveUnderlying(ctx, symbol)
		if err != nil {
			b.logger.WarnContext(ctx, "cannot resolve symbol for quotes",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
			continue
		}

		quote, err := b.streamQuote(ctx, conn, conid)
		if err != nil {
			return nil, fmt.Errorf("ibkr: get market data: %w", err)
		}
		if quote == nil {
			b.logger.WarnContext(ctx, "no quote within wait budget",
				slog.String("symbol", symbol))
			continue
		}
		quotes[symbol] = quote
	}
	return quotes, nil
}

// dialStream connects the streaming websocket and presents the session
// token obtained at Connect.
func (b *Broker) dialStream(ctx context.Context) (*websocket.Conn, error) {
	wsURL := strings.Replace(b.client.baseURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1) + "/ws"

	dialer := websocket.Dialer{
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: true},
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial stream: %w", err)
	}

	b.mu.Lock()
	session := b.session
	b.mu.Unlock()
	if session != "" {
		auth, _ := json.Marshal(map[string]string{"session": session})
		if err := conn.WriteMessage(websocket.TextMessage, auth); err != nil {
			conn.Close()
			return nil, fmt.Errorf("authenticate stream: %w", err)
		}
	}
	return conn, nil
}

// streamQuote subscribes one conid, reads frames until a usable quote or
// the wait budget runs out, then unsubscribes. A nil quote with nil
// error means the budget expired.
func (b *Broker) streamQuote(ctx context.Context, conn *websocket.Conn, conid int64) (*domain.Quote, error) {
	fields, _ := json.Marshal(map[string][]string{"fields": quoteFields})
	sub := fmt.Sprintf("smd+%d+%s", conid, fields)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(sub)); err != nil {
		return nil, fmt.Errorf("subscribe conid %d: %w", conid, err)
	}
	// Unsubscribe is best effort; the connection is torn down after the
	// batch anyway.
	defer conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf("umd+%d+{}", conid)))

	deadline := time.Now().Add(quoteWait)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	topic := fmt.Sprintf("smd+%d", conid)

	for time.Now().Before(deadline) {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return nil, fmt.Errorf("set read deadline: %w", err)
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if isTimeout(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("read stream: %w", err)
		}

		var msg mdMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Topic != topic && msg.Conid != conid {
			continue
		}

		quote := quoteFromFrame(msg)
		if quote.Last != nil || quote.Bid != nil {
			return &quote, nil
		}
	}
	return nil, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// quoteFromFrame converts one streaming frame. The gateway sends numeric
// fields as strings and may prefix last with "C" (prior close shown as
// last) or "H" (halted); those markers are stripped.
func quoteFromFrame(msg mdMessage) domain.Quote {
	quote := domain.Quote{
		Last:  parseStreamPrice(msg.Last),
		Bid:   parseStreamPrice(msg.Bid),
		Ask:   parseStreamPrice(msg.Ask),
		Close: parseStreamPrice(msg.Close),
	}
	if v := parseStreamPrice(msg.Volume); v != nil {
		quote.Volume = v.IntPart()
	}
	return quote
}

func parseStreamPrice(s string) *decimal.Decimal {
	s = strings.TrimLeft(s, "CH")
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}
