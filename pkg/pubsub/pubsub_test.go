package pubsub_test

import (
	"github.com/stretchr/testify/assert"
	"io"
	"log/slog"
	"shadecontrol/pkg/pubsub"
	"sync"
	"testing"
)

func TestPublisher(t *testing.T) {
	p := pubsub.New[int](slog.New(slog.NewTextHandler(io.Discard, nil)))

	const subscribers = 4
	var wg sync.WaitGroup
	wg.Add(subscribers)
	for range subscribers {
		ch := p.Subscribe()
		go func(ch chan int) {
			defer wg.Done()
			assert.Equal(t, 42, <-ch)
			p.Unsubscribe(ch)
		}(ch)
	}

	assert.Equal(t, subscribers, p.Subscribers())
	p.Publish(42)
	wg.Wait()
	assert.Equal(t, 0, p.Subscribers())
}
