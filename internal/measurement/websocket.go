package measurement

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"castspc/internal/logging"
)

const latestDataRequest = "get_latest_data"

// Message types that carry a predictions array.
var predictionMessageTypes = map[string]struct{}{
	"latest_data":     {},
	"realtime_update": {},
	"initial_data":    {},
}

type latestRequest struct {
	Type  string `json:"type"`
	Limit int    `json:"limit"`
}

// WebSocketSource polls the prediction service over a persistent websocket.
// The connection is dialed on first use and redialed after any transport error.
type WebSocketSource struct {
	url     string
	timeout time.Duration
	dialer  *websocket.Dialer
	logger  *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocketSource constructs a source for the given ws:// or wss:// URL.
func NewWebSocketSource(url string, timeout time.Duration, logger *slog.Logger) *WebSocketSource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebSocketSource{
		url:     url,
		timeout: timeout,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		},
		logger: logging.NewComponentLogger(logger, "websocket_source"),
	}
}

// Name implements Source.
func (s *WebSocketSource) Name() string { return "websocket" }

// FetchNext requests the most recent prediction and returns it as a Record.
func (s *WebSocketSource) FetchNext(ctx context.Context) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.connectLocked(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrSourceUnavailable, s.url, err)
	}

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(latestRequest{Type: latestDataRequest, Limit: 1}); err != nil {
		s.dropLocked()
		return nil, fmt.Errorf("%w: send request: %v", ErrSourceUnavailable, err)
	}

	_ = conn.SetReadDeadline(deadline)
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			s.dropLocked()
			return nil, fmt.Errorf("%w: read response: %v", ErrSourceUnavailable, err)
		}
		msgType := gjson.GetBytes(payload, "type").String()
		if _, ok := predictionMessageTypes[msgType]; !ok {
			s.logger.Debug("ignoring websocket message", logging.String("message_type", msgType))
			continue
		}
		return latestPrediction(payload)
	}
}

// Close implements Source.
func (s *WebSocketSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *WebSocketSource) connectLocked(ctx context.Context) (*websocket.Conn, error) {
	if s.conn != nil {
		return s.conn, nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	conn, resp, err := s.dialer.DialContext(dialCtx, s.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("connected to prediction service",
		logging.String("url", s.url),
		logging.String(logging.FieldEventType, "source_connected"),
	)
	s.conn = conn
	return conn, nil
}

func (s *WebSocketSource) dropLocked() {
	if s.conn == nil {
		return
	}
	_ = s.conn.Close()
	s.conn = nil
}

// latestPrediction picks the newest entry of the predictions array. Entries
// without a timestamp keep their array order.
func latestPrediction(payload []byte) (*Record, error) {
	predictions := gjson.GetBytes(payload, "predictions")
	if !predictions.IsArray() {
		return nil, nil
	}
	var newest gjson.Result
	found := false
	predictions.ForEach(func(_, item gjson.Result) bool {
		if !found {
			newest, found = item, true
			return true
		}
		if item.Get("timestamp").String() > newest.Get("timestamp").String() {
			newest = item
		}
		return true
	})
	if !found {
		return nil, nil
	}
	rec, err := NormalizeJSON([]byte(newest.Raw))
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
