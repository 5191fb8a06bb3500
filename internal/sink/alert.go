package sink

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/xmandeng/tastytrade-sdk-sub001/internal/model"
	"github.com/xmandeng/tastytrade-sdk-sub001/internal/notification"
)

const defaultAlertTimeout = 5 * time.Second

// AlertSink turns trade signals into notifications. Delivery is best
// effort: failures are logged and never abort the dispatch.
type AlertSink struct {
	n       notification.Notifier
	timeout time.Duration
}

// NewAlertSink creates an AlertSink. timeout <= 0 uses 5s.
func NewAlertSink(n notification.Notifier, timeout time.Duration) *AlertSink {
	if timeout <= 0 {
		timeout = defaultAlertTimeout
	}
	return &AlertSink{n: n, timeout: timeout}
}

func (s *AlertSink) Matches(ev model.Event) bool { return isSignal(ev) }

func (s *AlertSink) ProcessEvent(ctx context.Context, ev model.Event) error {
	sig, ok := signalOf(ev)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.n.Send(ctx, AlertFor(sig)); err != nil {
		log.Printf("[alert] %s %s %s: %v", sig.SignalType, sig.Direction, sig.Symbol, err)
	}
	return nil
}

// AlertFor renders a signal as an alert. Opens are INFO, closes WARNING.
func AlertFor(sig *model.TradeSignal) notification.Alert {
	level := notification.AlertInfo
	if sig.SignalType == model.SignalClose {
		level = notification.AlertWarning
	}
	return notification.Alert{
		Level: level,
		Title: fmt.Sprintf("%s %s %s", sig.SignalType, sig.Direction, sig.Symbol),
		Message: fmt.Sprintf("%s on %s at %s, close %s",
			sig.Trigger, sig.Timeframe, sig.TS.UTC().Format(time.RFC3339),
			strconv.FormatFloat(sig.ClosePrice, 'f', -1, 64)),
		Fields: map[string]string{
			"engine":     sig.EngineID,
			"trend":      string(sig.TrendDirection),
			"oscillator": string(sig.OscillatorPosition),
			"histogram":  strconv.FormatFloat(sig.OscillatorHistogram, 'f', 4, 64),
		},
	}
}
