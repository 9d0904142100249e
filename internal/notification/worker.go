package notification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"mazda-bridge-backend/internal/model"
)

// EventKind classifies what happened to a vehicle.
type EventKind string

const (
	EventCommandCompleted EventKind = "command_completed"
	EventPollFailure      EventKind = "poll_failure"
)

// Event is one notification job for the worker pool.
type Event struct {
	Kind      EventKind
	VehicleID string
	Command   string
	VisitNo   string
	State     string
	Message   string
}

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool manages a pool of workers pushing vehicle events to
// subscribed clients.
type WorkerPool struct {
	size    int
	jobs    chan Event
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	log     zerolog.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options, logger zerolog.Logger) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Event, size),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		log:     logger,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Debug().Int("worker", id).Msg("notification worker started")
	for {
		select {
		case evt := <-wp.jobs:
			wp.sendNotificationsForEvent(ctx, evt)
		case <-ctx.Done():
			wp.log.Debug().Int("worker", id).Msg("notification worker shutting down")
			return
		}
	}
}

// Dispatch queues an event for delivery. It never blocks the caller: when
// the queue is full the event is dropped, since notifications are best
// effort.
func (wp *WorkerPool) Dispatch(evt Event) {
	select {
	case wp.jobs <- evt:
	default:
		wp.log.Warn().Str("vehicle_id", evt.VehicleID).Str("kind", string(evt.Kind)).
			Msg("notification queue full, dropping event")
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Event {
	return wp.jobs
}

func (wp *WorkerPool) sendNotificationsForEvent(ctx context.Context, evt Event) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_vehicle_mapping svm ON svm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("svm.vehicle_id = ?", evt.VehicleID).
		Find(&subscriptions).Error
	if err != nil {
		wp.log.Error().Err(err).Str("vehicle_id", evt.VehicleID).Msg("error fetching subscriptions")
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	message := evt.Message
	if message == "" {
		message = wp.defaultMessage(ctx, evt)
	}

	wp.log.Info().Int("count", len(subscriptions)).Str("vehicle_id", evt.VehicleID).
		Msg("sending notifications")
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

func (wp *WorkerPool) defaultMessage(ctx context.Context, evt Event) string {
	label := evt.VehicleID
	var vehicle model.Vehicle
	if err := wp.db.WithContext(ctx).First(&vehicle, "id = ?", evt.VehicleID).Error; err == nil {
		if vehicle.Nickname != "" {
			label = vehicle.Nickname
		} else if vehicle.CarlineName != "" {
			label = vehicle.ModelYear + " " + vehicle.CarlineName
		}
	}

	switch evt.Kind {
	case EventCommandCompleted:
		return fmt.Sprintf("%s: command %s %s", label, evt.Command, evt.State)
	case EventPollFailure:
		return fmt.Sprintf("%s: repeated poll failures, data may be stale", label)
	}
	return fmt.Sprintf("%s: %s", label, evt.Kind)
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.log.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("error sending notification")
		return
	}
	defer resp.Body.Close()

	// Expired subscriptions are cleaned up on delivery failure.
	if resp.StatusCode == http.StatusGone {
		wp.log.Info().Str("endpoint", sub.Endpoint).Msg("subscription expired, deleting")
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			wp.log.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to delete expired subscription")
		}
	}
}
