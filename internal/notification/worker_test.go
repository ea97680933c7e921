package notification

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"visitor-parking-backend/internal/db"
	"visitor-parking-backend/internal/model"
)

type fakeSender struct {
	sent     []string
	payloads []string
	status   int
}

func (f *fakeSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	f.sent = append(f.sent, sub.Endpoint)
	f.payloads = append(f.payloads, string(payload))
	status := f.status
	if status == 0 {
		status = http.StatusCreated
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(""))}, nil
}

func newTestPool(t *testing.T, sender Sender) (*WorkerPool, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	testDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := testDB.DB()
		sqlDB.Close()
	})
	require.NoError(t, db.Migrate(testDB))

	pool := NewWorkerPool(1, testDB, &webpush.Options{})
	pool.sender = sender
	return pool, testDB
}

func seedReservation(t *testing.T, testDB *gorm.DB, dept string) *model.Reservation {
	t.Helper()
	slot := "A03"
	now := time.Now().UTC()
	r := &model.Reservation{
		Department:      dept,
		VisitorPlate:    "RFDT69",
		VisitorDocument: "123456785",
		WindowStart:     now,
		WindowEnd:       now.Add(2 * time.Hour),
		AssignedSlotID:  &slot,
		State:           model.StateAssigned,
	}
	require.NoError(t, testDB.Create(r).Error)
	return r
}

func TestDeliverSendsToDepartmentSubscriptions(t *testing.T) {
	sender := &fakeSender{}
	pool, testDB := newTestPool(t, sender)

	r := seedReservation(t, testDB, "1108")
	require.NoError(t, testDB.Create(&model.PushSubscription{
		Endpoint: "https://push.example.com/mine", P256DH: "k", Auth: "a", Department: "1108",
	}).Error)
	require.NoError(t, testDB.Create(&model.PushSubscription{
		Endpoint: "https://push.example.com/other", P256DH: "k", Auth: "a", Department: "1109",
	}).Error)

	pool.deliver(context.Background(), Job{ReservationID: r.ID, Event: model.EventReservationAssigned})

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "https://push.example.com/mine", sender.sent[0])
	assert.Contains(t, sender.payloads[0], "A03")
	assert.Contains(t, sender.payloads[0], "RFDT69")
}

func TestDeliverDeletesGoneSubscription(t *testing.T) {
	sender := &fakeSender{status: http.StatusGone}
	pool, testDB := newTestPool(t, sender)

	r := seedReservation(t, testDB, "1108")
	require.NoError(t, testDB.Create(&model.PushSubscription{
		Endpoint: "https://push.example.com/stale", P256DH: "k", Auth: "a", Department: "1108",
	}).Error)

	pool.deliver(context.Background(), Job{ReservationID: r.ID, Event: model.EventReservationCancelled})

	var count int64
	require.NoError(t, testDB.Model(&model.PushSubscription{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestNotifyNeverBlocks(t *testing.T) {
	pool, _ := newTestPool(t, &fakeSender{})

	// No worker is draining the queue; filling it past capacity must not
	// deadlock the caller.
	for i := 0; i < 100; i++ {
		pool.Notify(int64(i), model.EventReservationAssigned)
	}
	assert.LessOrEqual(t, len(pool.Jobs()), cap(pool.Jobs()))
}
