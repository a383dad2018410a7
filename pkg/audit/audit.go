// Package audit records order events off the request path. Events are sent to
// a single actor that writes them to the audit sink one at a time.
package audit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/bookshop/pkg/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

const serviceName = "order-service"

const (
	ActionOrderPlaced     = "order_placed"
	ActionStatusChanged   = "status_changed"
	ActionOrderCancelled  = "order_cancelled"
	ActionPaymentReceived = "payment_received"
	ActionPaymentFailed   = "payment_failed"
	ActionGuestAccess     = "guest_access"
)

type Event struct {
	Action  string
	OrderID uint64
	UserID  *uint64
	Data    map[string]any
	At      time.Time
}

type Sink interface {
	CreateAuditLog(ctx context.Context, log *repository.AuditLog) error
}

// Messages
type record struct {
	event Event
}

type flush struct{}

type flushed struct{}

type auditActor struct {
	sink    Sink
	timeout time.Duration
	logger  *zap.Logger
}

func (a *auditActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *record:
		a.write(msg.event)

	case *flush:
		ctx.Respond(&flushed{})

	case *actor.Started:
		a.logger.Info("Audit actor started")

	case *actor.Stopped:
		a.logger.Info("Audit actor stopped")
	}
}

func (a *auditActor) write(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	err := a.sink.CreateAuditLog(ctx, &repository.AuditLog{
		Service:   serviceName,
		Action:    e.Action,
		OrderID:   e.OrderID,
		Actor:     actorName(e.UserID),
		Data:      bson.M(e.Data),
		CreatedAt: e.At,
	})
	if err != nil {
		a.logger.Warn("Failed to write audit log",
			zap.String("action", e.Action),
			zap.Uint64("order_id", e.OrderID),
			zap.Error(err))
	}
}

func actorName(userID *uint64) string {
	if userID == nil {
		return "guest"
	}
	return "user:" + strconv.FormatUint(*userID, 10)
}

// Recorder is the handle callers use to submit events.
type Recorder struct {
	system *actor.ActorSystem
	pid    *actor.PID
	logger *zap.Logger
}

func NewRecorder(sink Sink, writeTimeout time.Duration, logger *zap.Logger) (*Recorder, error) {
	system := actor.NewActorSystem()

	props := actor.PropsFromProducer(func() actor.Actor {
		return &auditActor{sink: sink, timeout: writeTimeout, logger: logger}
	})
	pid, err := system.Root.SpawnNamed(props, "audit")
	if err != nil {
		return nil, fmt.Errorf("failed to spawn audit actor: %w", err)
	}

	return &Recorder{system: system, pid: pid, logger: logger}, nil
}

// Record enqueues e and returns immediately.
func (r *Recorder) Record(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	r.system.Root.Send(r.pid, &record{event: e})
}

// Flush waits until every event recorded before the call has been written.
func (r *Recorder) Flush(timeout time.Duration) error {
	res, err := r.system.Root.RequestFuture(r.pid, &flush{}, timeout).Result()
	if err != nil {
		return fmt.Errorf("flush audit actor: %w", err)
	}
	if _, ok := res.(*flushed); !ok {
		return fmt.Errorf("flush audit actor: unexpected reply %T", res)
	}
	return nil
}

// Close drains pending events and stops the actor.
func (r *Recorder) Close(timeout time.Duration) {
	if err := r.Flush(timeout); err != nil {
		r.logger.Warn("Audit events may be lost on shutdown", zap.Error(err))
	}
	r.system.Root.Stop(r.pid)
}
