package alert

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-summary-service/internal/observability"
)

// Message is one outgoing alert email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a Message. Implementations must honour ctx cancellation.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Alert kinds, used as the kind label on alertsTotal.
const (
	KindTemperature = "temperature"
	KindCondition   = "condition"
	KindTest        = "test"
)

// Config controls recipient and delivery bounds for the Notifier.
type Config struct {
	Recipient   string
	Threshold   float64
	SendTimeout time.Duration
}

// Notifier sends alert emails asynchronously. Delivery is best-effort: failures
// are logged and counted, never returned to the caller.
type Notifier struct {
	sender Sender
	cfg    Config
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewNotifier returns a Notifier. SendTimeout defaults to 10s.
func NewNotifier(sender Sender, cfg Config, logger *zap.Logger) *Notifier {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{sender: sender, cfg: cfg, logger: logger}
}

// TemperatureMessage builds the threshold-breach email for city.
func TemperatureMessage(city string, temp, threshold float64) (subject, body string) {
	subject = fmt.Sprintf("Weather Alert for %s", city)
	body = fmt.Sprintf("Alert: Temperature in %s exceeds the threshold of %s°C! Current temperature: %s°C.",
		city, formatTemp(threshold), formatTemp(temp))
	return subject, body
}

// ConditionMessage builds the watched-condition email for city.
func ConditionMessage(city, condition string) (subject, body string) {
	subject = fmt.Sprintf("Weather Alert for %s", city)
	body = fmt.Sprintf("Alert: %s reported in %s.", condition, city)
	return subject, body
}

// formatTemp prints 36 as "36" and 36.55 as "36.55".
func formatTemp(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// NotifyTemperature sends the threshold-breach email for city without blocking.
func (n *Notifier) NotifyTemperature(city string, temp float64) {
	subject, body := TemperatureMessage(city, temp, n.cfg.Threshold)
	n.dispatch(KindTemperature, city, subject, body)
}

// NotifyCondition sends the watched-condition email for city without blocking.
func (n *Notifier) NotifyCondition(city, condition string) {
	subject, body := ConditionMessage(city, condition)
	n.dispatch(KindCondition, city, subject, body)
}

// SendTest fires one temperature alert with fixed sample values, used by the
// test-email endpoint to exercise the delivery path.
func (n *Notifier) SendTest() {
	subject, body := TemperatureMessage("Delhi", 36, n.cfg.Threshold)
	n.dispatch(KindTest, "Delhi", subject, body)
}

func (n *Notifier) dispatch(kind, city, subject, body string) {
	msg := Message{To: n.cfg.Recipient, Subject: subject, Body: body}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), n.cfg.SendTimeout)
		defer cancel()

		if err := n.sender.Send(ctx, msg); err != nil {
			observability.AlertsTotal.WithLabelValues(kind, "failed").Inc()
			n.logger.Error("alert email failed",
				zap.String("kind", kind),
				zap.String("city", city),
				zap.Error(err),
			)
			return
		}
		observability.AlertsTotal.WithLabelValues(kind, "sent").Inc()
		n.logger.Info("alert email sent",
			zap.String("kind", kind),
			zap.String("city", city),
			zap.String("to", msg.To),
		)
	}()
}

// Wait blocks until in-flight sends finish or ctx is done.
func (n *Notifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
