package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := NewBus()

	var got []Event
	cancel := b.Subscribe(ChannelToolStart, func(ev Event) {
		got = append(got, ev)
	})

	b.Publish(ChannelToolStart, Event{Kind: KindToolStart, TerminalID: 1})
	b.Publish(ChannelToolEnd, Event{Kind: KindToolEnd, TerminalID: 1})

	assert.Len(t, got, 1, "only subscribed channel delivers")
	assert.Equal(t, KindToolStart, got[0].Kind)

	cancel()
	b.Publish(ChannelToolStart, Event{Kind: KindToolStart})
	assert.Len(t, got, 1, "cancelled subscription receives nothing")
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	b := NewBus()
	// Fire-and-forget: no subscriber, no problem.
	b.Publish(ChannelRawOutput, Event{Kind: KindRawOutput})
}

func TestBus_MultipleSubscribers(t *testing.T) {
	b := NewBus()
	count := 0
	b.Subscribe(ChannelError, func(Event) { count++ })
	b.Subscribe(ChannelError, func(Event) { count++ })

	b.Publish(ChannelError, Event{Kind: KindError})
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, b.SubscriberCount(ChannelError))
}

func TestBus_PanickingSubscriberIsolated(t *testing.T) {
	b := NewBus()
	delivered := false
	b.Subscribe(ChannelError, func(Event) { panic("bad handler") })
	b.Subscribe(ChannelError, func(Event) { delivered = true })

	b.Publish(ChannelError, Event{Kind: KindError})
	assert.True(t, delivered, "panic in one handler must not skip others")
}

func TestBus_Close(t *testing.T) {
	b := NewBus()
	count := 0
	b.Subscribe(ChannelToolStart, func(Event) { count++ })

	b.Close()
	for _, ch := range AllChannels() {
		assert.Zero(t, b.SubscriberCount(ch), "channel %s should have no listeners", ch)
	}

	b.Publish(ChannelToolStart, Event{})
	assert.Zero(t, count)

	// Subscriptions after close are inert.
	cancel := b.Subscribe(ChannelToolStart, func(Event) { count++ })
	b.Publish(ChannelToolStart, Event{})
	assert.Zero(t, count)
	cancel()
}

func TestEventKind_BusChannel(t *testing.T) {
	assert.Equal(t, ChannelToolStart, KindToolStart.BusChannel())
	assert.Equal(t, ChannelRawOutput, KindRawOutput.BusChannel())
	for _, ch := range AllChannels() {
		assert.NotEmpty(t, ch)
	}
}
