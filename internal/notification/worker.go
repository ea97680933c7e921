package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"visitor-parking-backend/internal/model"
)

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is the real Sender backed by the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Job asks the pool to push one reservation event to the owning
// department's subscriptions.
type Job struct {
	ReservationID int64
	Event         string
}

// WorkerPool delivers reservation pushes off the request path.
type WorkerPool struct {
	size    int
	jobs    chan Job
	db      *gorm.DB
	webpush *webpush.Options
	sender  Sender
}

// NewWorkerPool creates a worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Job, size*4),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("notification worker %d started", id)
	for {
		select {
		case job := <-wp.jobs:
			wp.deliver(ctx, job)
		case <-ctx.Done():
			log.Printf("notification worker %d shutting down", id)
			return
		}
	}
}

// Notify enqueues a job without blocking the caller. A full queue drops the
// push; the next poll shows the state change anyway.
func (wp *WorkerPool) Notify(reservationID int64, event string) {
	select {
	case wp.jobs <- Job{ReservationID: reservationID, Event: event}:
	default:
		log.Printf("notification queue full; dropping %s for reservation %d", event, reservationID)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Job {
	return wp.jobs
}

func (wp *WorkerPool) deliver(ctx context.Context, job Job) {
	var r model.Reservation
	if err := wp.db.WithContext(ctx).First(&r, job.ReservationID).Error; err != nil {
		log.Printf("failed to load reservation %d for push: %v", job.ReservationID, err)
		return
	}

	var subs []model.PushSubscription
	if err := wp.db.WithContext(ctx).
		Where("department = ?", r.Department).
		Find(&subs).Error; err != nil {
		log.Printf("failed to load subscriptions for %s: %v", r.Department, err)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload, err := json.Marshal(map[string]string{
		"title": "Visitor parking",
		"body":  messageFor(job.Event, &r),
	})
	if err != nil {
		log.Printf("failed to marshal push payload: %v", err)
		return
	}

	log.Printf("sending %d pushes for reservation %d (%s)", len(subs), r.ID, job.Event)
	for _, sub := range subs {
		wp.send(ctx, sub, payload)
	}
}

func messageFor(event string, r *model.Reservation) string {
	switch event {
	case model.EventReservationAssigned:
		slot := ""
		if r.AssignedSlotID != nil {
			slot = *r.AssignedSlotID
		}
		return fmt.Sprintf("Slot %s was assigned to your visitor %s", slot, r.VisitorPlate)
	case model.EventReservationCancelled:
		return fmt.Sprintf("Your reservation for %s was cancelled", r.VisitorPlate)
	default:
		return fmt.Sprintf("Your reservation for %s was updated", r.VisitorPlate)
	}
}

func (wp *WorkerPool) send(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("failed to push to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// The push service reports a gone subscription with 410.
	if resp.StatusCode == http.StatusGone {
		log.Printf("subscription %s expired; deleting", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
