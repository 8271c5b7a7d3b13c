package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"mtfbot/internal/indicator"
)

// KlineEvent is one bar update from the stream. Closed flips true exactly
// once per bar, when the venue seals it.
type KlineEvent struct {
	Symbol    string
	Timeframe string
	Kline     indicator.Kline
	Closed    bool
}

// StreamConfig holds the websocket stream settings.
type StreamConfig struct {
	URL        string   `yaml:"url"`
	Symbols    []string `yaml:"symbols"`
	Timeframes []string `yaml:"timeframes"`
}

// KlineStream consumes a combined kline websocket feed and republishes bar
// updates. It reconnects with capped exponential backoff until the context
// is cancelled.
type KlineStream struct {
	log zerolog.Logger
	cfg StreamConfig
}

func NewKlineStream(log zerolog.Logger, cfg StreamConfig) *KlineStream {
	return &KlineStream{log: log, cfg: cfg}
}

type streamEnvelope struct {
	Stream string      `json:"stream"`
	Data   streamKline `json:"data"`
}

type streamKline struct {
	Symbol string `json:"s"`
	Kline  struct {
		StartTime int64  `json:"t"`
		Interval  string `json:"i"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

// Run connects and pushes events into out until ctx is cancelled.
func (s *KlineStream) Run(ctx context.Context, out chan<- KlineEvent) error {
	if len(s.cfg.Symbols) == 0 || len(s.cfg.Timeframes) == 0 {
		return fmt.Errorf("kline stream requires at least one symbol and timeframe")
	}

	streams := make([]string, 0, len(s.cfg.Symbols)*len(s.cfg.Timeframes))
	for _, sym := range s.cfg.Symbols {
		for _, tf := range s.cfg.Timeframes {
			streams = append(streams, strings.ToLower(sym)+"@kline_"+tf)
		}
	}
	url := fmt.Sprintf("%s/stream?streams=%s", strings.TrimSuffix(s.cfg.URL, "/"), strings.Join(streams, "/"))

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.consume(ctx, url, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn().Err(err).Msg("kline stream disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		return nil
	}
}

func (s *KlineStream) consume(ctx context.Context, url string, out chan<- KlineEvent) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	s.log.Info().Strs("symbols", s.cfg.Symbols).Strs("timeframes", s.cfg.Timeframes).Msg("connected kline stream")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					s.log.Warn().Err(err).Msg("kline stream ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env streamEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			s.log.Warn().Err(err).Msg("failed to decode kline message")
			continue
		}

		event, err := env.Data.toEvent()
		if err != nil {
			s.log.Warn().Err(err).Str("stream", env.Stream).Msg("invalid kline payload")
			continue
		}

		select {
		case out <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (sk streamKline) toEvent() (KlineEvent, error) {
	open, err := strconv.ParseFloat(sk.Kline.Open, 64)
	if err != nil {
		return KlineEvent{}, fmt.Errorf("open %q: %w", sk.Kline.Open, err)
	}
	high, err := strconv.ParseFloat(sk.Kline.High, 64)
	if err != nil {
		return KlineEvent{}, fmt.Errorf("high %q: %w", sk.Kline.High, err)
	}
	low, err := strconv.ParseFloat(sk.Kline.Low, 64)
	if err != nil {
		return KlineEvent{}, fmt.Errorf("low %q: %w", sk.Kline.Low, err)
	}
	closePx, err := strconv.ParseFloat(sk.Kline.Close, 64)
	if err != nil {
		return KlineEvent{}, fmt.Errorf("close %q: %w", sk.Kline.Close, err)
	}
	vol, err := strconv.ParseFloat(sk.Kline.Volume, 64)
	if err != nil {
		return KlineEvent{}, fmt.Errorf("volume %q: %w", sk.Kline.Volume, err)
	}
	return KlineEvent{
		Symbol:    strings.ToUpper(sk.Symbol),
		Timeframe: sk.Kline.Interval,
		Closed:    sk.Kline.Closed,
		Kline: indicator.Kline{
			Timestamp: time.UnixMilli(sk.Kline.StartTime),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePx,
			Volume:    vol,
		},
	}, nil
}
