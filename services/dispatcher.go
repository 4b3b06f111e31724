package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"txt-worker/domain"
)

var ErrAlreadySettled = errors.New("delivery already settled")

// DeliveryHandle settles one broker delivery.
type DeliveryHandle interface {
	Ack() error
	Nack(requeue bool) error
}

type JobRunner interface {
	Run(ctx context.Context, job domain.Job) error
}

type ErrorHandler func(job domain.Job, err error)

// Dispatcher validates incoming events and runs each accepted job in its own goroutine.
type Dispatcher struct {
	runner    JobRunner
	ackPolicy domain.AckPolicy
	onError   ErrorHandler
	now       func() time.Time
	newID     func() string
	wg        sync.WaitGroup
}

type DispatcherOption func(*Dispatcher)

func WithJobRunner(r JobRunner) DispatcherOption {
	return func(d *Dispatcher) { d.runner = r }
}

func WithAckPolicy(p domain.AckPolicy) DispatcherOption {
	return func(d *Dispatcher) { d.ackPolicy = p }
}

func WithErrorHandler(h ErrorHandler) DispatcherOption {
	return func(d *Dispatcher) { d.onError = h }
}

func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		ackPolicy: domain.AckOnReceipt,
		onError:   logJobError,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func logJobError(job domain.Job, err error) {
	log.Printf("Error in job %s: %v", job.ID, err)
}

// HandleDelivery is called once per broker message. It never blocks on extraction.
func (d *Dispatcher) HandleDelivery(ctx context.Context, body []byte, handle DeliveryHandle) {
	ev, job, err := domain.ParseEvent(body)

	msgType := ev.Type
	if msgType == "" {
		msgType = "?"
	}
	log.Printf("MESSAGE: %s - %s", msgType, d.now().Format(time.RFC3339))

	h := SettleOnce(handle)
	if err != nil {
		log.Printf("Rejecting message: %v", err)
		if nErr := h.Nack(false); nErr != nil {
			log.Printf("Error rejecting message: %v", nErr)
		}
		return
	}

	if d.runner == nil {
		log.Printf("Rejecting %s message: no job runner configured", ev.Type)
		if nErr := h.Nack(false); nErr != nil {
			log.Printf("Error rejecting message: %v", nErr)
		}
		return
	}

	job.ID = d.newID()
	job.ReceivedAt = d.now()

	if d.ackPolicy == domain.AckOnReceipt {
		if err := h.Ack(); err != nil {
			log.Printf("Error acknowledging job %s: %v", job.ID, err)
		}
	}

	log.Printf("Job %s accepted: %s -> %s", job.ID, job.SourcePath, job.OutputDir)

	d.wg.Add(1)
	go d.run(context.WithoutCancel(ctx), job, h)
}

func (d *Dispatcher) run(ctx context.Context, job domain.Job, h DeliveryHandle) {
	defer d.wg.Done()

	err := d.runner.Run(ctx, job)

	if d.ackPolicy == domain.AckOnCompletion {
		var sErr error
		if err == nil {
			sErr = h.Ack()
		} else {
			sErr = h.Nack(false)
		}
		if sErr != nil {
			log.Printf("Error settling job %s: %v", job.ID, sErr)
		}
	}

	if err != nil {
		d.onError(job, err)
	}
}

// Wait blocks until every job started so far has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

type settleOnce struct {
	handle  DeliveryHandle
	settled atomic.Bool
}

// SettleOnce wraps h so only the first Ack or Nack reaches the broker.
func SettleOnce(h DeliveryHandle) DeliveryHandle {
	if s, ok := h.(*settleOnce); ok {
		return s
	}
	return &settleOnce{handle: h}
}

func (s *settleOnce) Ack() error {
	if !s.settled.CompareAndSwap(false, true) {
		return ErrAlreadySettled
	}
	return s.handle.Ack()
}

func (s *settleOnce) Nack(requeue bool) error {
	if !s.settled.CompareAndSwap(false, true) {
		return ErrAlreadySettled
	}
	return s.handle.Nack(requeue)
}
