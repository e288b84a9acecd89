package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusFansOutToSubscribers(t *testing.T) {
	b := NewBus()
	var got []Notification
	unsub := b.Subscribe(func(n Notification) { got = append(got, n) })
	defer unsub()

	b.NotifySuccess("Schedule Confirmed", "3 changes applied")
	b.NotifyError("Schedule Confirmation Failed", "Gate has expired")

	assert.Len(t, got, 2)
	assert.Equal(t, LevelSuccess, got[0].Level)
	assert.Equal(t, "Schedule Confirmed", got[0].Title)
	assert.Equal(t, LevelError, got[1].Level)
	assert.Equal(t, "Gate has expired", got[1].Body)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	var count int
	unsub := b.Subscribe(func(Notification) { count++ })

	b.NotifySuccess("Schedule Cancelled", "")
	unsub()
	b.NotifySuccess("Schedule Cancelled", "")

	assert.Equal(t, 1, count)
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	b := NewBus()
	assert.NotPanics(t, func() { b.NotifySuccess("Schedule Confirmed", "") })
}
