// Package notify отправляет уведомления вне пути обработки запроса.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/academy-store/internal/metrics"
)

// ErrClosed возвращается при постановке задачи после Close.
var ErrClosed = errors.New("dispatcher closed")

// Failure описывает неудачную отправку.
type Failure struct {
	Event string
	Err   error
}

// Dispatcher запускает каждую отправку в отдельной горутине с собственным таймаутом.
// Ошибки попадают в канал, который читает только Run, и никогда не возвращаются вызывающему.
type Dispatcher struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	errs   chan Failure
}

// NewDispatcher создаёт диспетчер с таймаутом одной отправки.
func NewDispatcher(logger *zap.Logger, m *metrics.Metrics, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		logger:  logger.With(zap.String("component", "notify")),
		metrics: m,
		timeout: timeout,
		errs:    make(chan Failure, 64),
	}
}

// Go ставит отправку в работу и сразу возвращает управление.
func (d *Dispatcher) Go(event string, send func(ctx context.Context) error) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Warn("notification dropped", zap.String("event", event), zap.Error(ErrClosed))
		return ErrClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		err := send(ctx)
		d.count(event, err)
		if err == nil {
			return
		}

		select {
		case d.errs <- Failure{Event: event, Err: err}:
		default:
			d.logger.Error("notification failed", zap.String("event", event), zap.Error(err))
		}
	}()

	return nil
}

// Run пишет ошибки отправок в лог, пока канал не закрыт вызовом Close.
func (d *Dispatcher) Run() {
	for f := range d.errs {
		d.logger.Error("notification failed", zap.String("event", f.Event), zap.Error(f.Err))
	}
}

// Close запрещает новые отправки, дожидается начатых и закрывает канал ошибок.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
	close(d.errs)
}

func (d *Dispatcher) count(event string, err error) {
	if d.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	d.metrics.Notifications.WithLabelValues(event, status).Inc()
}
