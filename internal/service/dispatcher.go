package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/weiawesome/realm-live/internal/domain"
	"github.com/weiawesome/realm-live/internal/hub"
	"github.com/weiawesome/realm-live/internal/metrics"
	"github.com/weiawesome/realm-live/internal/repository"
	"github.com/weiawesome/realm-live/pkg/log"
	"github.com/weiawesome/realm-live/pkg/pubsub"
)

// DeliveryReport describes the outcome of one dispatch. Failing to reach a
// channel is counted here, not returned as an error.
type DeliveryReport struct {
	Audience  int `json:"audience"`
	Channels  int `json:"channels"`
	Delivered int `json:"delivered"`
	Dropped   int `json:"dropped"`
}

// Dispatcher resolves audiences, persists notifications and enqueues pushes.
type Dispatcher struct {
	audience      repository.MembershipRepository
	notifications repository.NotificationRepository
	registry      ChannelRegistry
	sink          pubsub.Publisher
	metrics       *metrics.Metrics
	validate      *validator.Validate
	sinkTimeout   time.Duration
	exports       chan exportJob
}

type exportJob struct {
	ctx     context.Context
	channel string
	event   *pubsub.Event
}

const exportQueueSize = 256

// NewDispatcher creates a dispatcher. sink and m may be nil.
func NewDispatcher(
	audience repository.MembershipRepository,
	notifications repository.NotificationRepository,
	registry ChannelRegistry,
	sink pubsub.Publisher,
	m *metrics.Metrics,
) *Dispatcher {
	return &Dispatcher{
		audience:      audience,
		notifications: notifications,
		registry:      registry,
		sink:          sink,
		metrics:       m,
		validate:      validator.New(),
		sinkTimeout:   2 * time.Second,
		exports:       make(chan exportJob, exportQueueSize),
	}
}

// RunExports drains queued exports into the sink until ctx is done, then
// flushes whatever is still queued.
func (d *Dispatcher) RunExports(ctx context.Context) error {
	for {
		select {
		case job := <-d.exports:
			d.publish(job)
		case <-ctx.Done():
			for {
				select {
				case job := <-d.exports:
					d.publish(job)
				default:
					return nil
				}
			}
		}
	}
}

// DispatchEvent pushes event to every live channel of every member of its
// project. An unknown project has an empty audience.
func (d *Dispatcher) DispatchEvent(ctx context.Context, event domain.DomainEvent) (DeliveryReport, error) {
	start := time.Now()

	members, err := d.audience.MembersOf(ctx, event.Project())
	if err != nil {
		return DeliveryReport{}, fmt.Errorf("failed to resolve audience of project %s: %w", event.Project(), err)
	}

	data, err := domain.EncodePush(event)
	if err != nil {
		return DeliveryReport{}, fmt.Errorf("failed to encode %s: %w", event.Type(), err)
	}

	report := d.fanOut(members, data)
	d.metrics.ObserveDispatch(string(event.Type()), report.Delivered, report.Dropped, time.Since(start))
	d.export(ctx, event, data)

	l := log.Ctx(ctx)
	l.Debug().
		Str(log.FieldEventType, string(event.Type())).
		Str(log.FieldProjectID, event.Project()).
		Int(log.FieldAudience, report.Audience).
		Int(log.FieldChannels, report.Channels).
		Int(log.FieldDelivered, report.Delivered).
		Int(log.FieldDropped, report.Dropped).
		Msg("event dispatched")

	return report, nil
}

// DispatchNotification persists a notification and pushes it to the
// recipient's live channels. Only persistence failures are returned.
func (d *Dispatcher) DispatchNotification(ctx context.Context, req domain.NotificationRequest) (*domain.Notification, DeliveryReport, error) {
	start := time.Now()

	if err := d.validate.Struct(req); err != nil {
		return nil, DeliveryReport{}, fmt.Errorf("%w: %v", ErrInvalidNotification, err)
	}

	n := &domain.Notification{
		UserID:    req.Recipient,
		Kind:      req.Kind,
		Content:   req.Content,
		ProjectID: optional(req.ProjectID),
		TaskID:    optional(req.TaskID),
	}
	if err := d.notifications.Create(ctx, n); err != nil {
		return nil, DeliveryReport{}, fmt.Errorf("failed to store notification: %w", err)
	}
	d.metrics.IncrementNotifications(string(n.Kind))

	data, err := domain.EncodePush(domain.NotificationPushed{Notification: *n})
	if err != nil {
		return n, DeliveryReport{}, fmt.Errorf("failed to encode notification: %w", err)
	}

	report := d.fanOut([]domain.UserIdentity{req.Recipient}, data)
	d.metrics.ObserveDispatch(string(domain.MsgTypeNotification), report.Delivered, report.Dropped, time.Since(start))

	l := log.Ctx(ctx)
	l.Debug().
		Str(log.FieldUserID, req.Recipient.String()).
		Str(log.FieldNotifyKind, string(req.Kind)).
		Int(log.FieldChannels, report.Channels).
		Int(log.FieldDelivered, report.Delivered).
		Msg("notification dispatched")

	return n, report, nil
}

// fanOut enqueues data once on every open channel of the given identities.
// A channel whose buffer is full is evicted.
func (d *Dispatcher) fanOut(identities []domain.UserIdentity, data []byte) DeliveryReport {
	unique := make(map[domain.UserIdentity]struct{}, len(identities))
	for _, id := range identities {
		unique[id] = struct{}{}
	}
	report := DeliveryReport{Audience: len(unique)}
	if len(unique) == 0 {
		return report
	}

	for _, clients := range d.registry.Snapshot(identities) {
		for _, c := range clients {
			report.Channels++
			switch err := c.Enqueue(data); {
			case err == nil:
				report.Delivered++
			case errors.Is(err, hub.ErrSendBufferFull):
				report.Dropped++
				d.registry.Evict(c)
			default:
				report.Dropped++
			}
		}
	}
	return report
}

// export queues the event for the sink without waiting on it. A full queue
// drops the export.
func (d *Dispatcher) export(ctx context.Context, event domain.DomainEvent, data []byte) {
	if d.sink == nil {
		return
	}

	l := log.Ctx(ctx)
	evt, err := pubsub.NewEvent(string(event.Type()), event.Project(), data)
	if err != nil {
		l.Warn().Err(err).
			Str(log.FieldEventType, string(event.Type())).
			Str(log.FieldProjectID, event.Project()).
			Msg("failed to export event")
		return
	}

	job := exportJob{
		ctx:     context.WithoutCancel(ctx),
		channel: pubsub.ProjectEventsChannel(event.Project()),
		event:   evt,
	}
	select {
	case d.exports <- job:
	default:
		l.Warn().
			Str(log.FieldEventType, string(event.Type())).
			Str(log.FieldProjectID, event.Project()).
			Msg("export queue full, event not exported")
	}
}

func (d *Dispatcher) publish(job exportJob) {
	ctx, cancel := context.WithTimeout(job.ctx, d.sinkTimeout)
	defer cancel()
	if err := d.sink.Publish(ctx, job.channel, job.event); err != nil {
		l := log.Ctx(job.ctx)
		l.Warn().Err(err).
			Str(log.FieldEventType, job.event.Type).
			Str(log.FieldProjectID, job.event.ProjectID).
			Msg("failed to export event")
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
