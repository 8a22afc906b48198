package rpc

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"energymarket/core/types"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsBuffer       = 128
)

// handleEventsWS streams committed receipts. An optional "operation" query
// parameter restricts the stream to a label prefix such as "market.".
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	filter := strings.TrimSpace(r.URL.Query().Get("operation"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	if err := s.streamReceipts(ctx, conn, filter); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamReceipts(ctx context.Context, conn *websocket.Conn, filter string) error {
	receipts, cancel := s.feed.Subscribe(wsBuffer)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case receipt, ok := <-receipts:
			if !ok {
				return nil
			}
			if filter != "" && !strings.HasPrefix(receipt.Operation, filter) {
				continue
			}
			if err := writeReceipt(ctx, conn, receipt); err != nil {
				return err
			}
		}
	}
}

func writeReceipt(ctx context.Context, conn *websocket.Conn, receipt *types.Receipt) error {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, receiptMessage{
		Sequence: strconv.FormatUint(receipt.Sequence, 10),
		Receipt:  receipt,
	})
}

type receiptMessage struct {
	Sequence string         `json:"sequence"`
	Receipt  *types.Receipt `json:"receipt"`
}
