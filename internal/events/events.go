// Package events broadcasts accepted tile edits over Redis Pub/Sub so that
// operators (songgrid watch) and other server instances can follow the grid live.
//
// Delivery is at-most-once: subscribers that are not connected when an edit
// is published never see it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dyluth/songgrid/pkg/grid"
)

const subscriptionBuffer = 10

// Channel returns the Pub/Sub channel for tile events, optionally namespaced.
func Channel(namespace string) string {
	if namespace == "" {
		return "tile_events"
	}
	return namespace + ":tile_events"
}

// TileUpdated is published after a cell write succeeds.
type TileUpdated struct {
	Row         int       `json:"rowNum"`
	Col         int       `json:"colNum"`
	Link        string    `json:"link"`
	Username    string    `json:"username"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Coord returns the coordinate of the edited cell.
func (e TileUpdated) Coord() grid.Coord {
	return grid.Coord{Row: e.Row, Col: e.Col}
}

// Publisher announces accepted edits.
type Publisher struct {
	rdb     redis.Cmdable
	channel string
}

// NewPublisher creates a publisher on the namespace's tile channel.
func NewPublisher(rdb redis.Cmdable, namespace string) *Publisher {
	return &Publisher{rdb: rdb, channel: Channel(namespace)}
}

// Publish sends cell as a TileUpdated event.
func (p *Publisher) Publish(ctx context.Context, cell grid.Cell) error {
	event := TileUpdated{Row: cell.Row, Col: cell.Col, Link: cell.Link, Username: cell.Username}
	if cell.LastUpdated != nil {
		event.LastUpdated = cell.LastUpdated.UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal tile event: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish tile event: %w", err)
	}
	return nil
}

// Subscription delivers tile events until closed.
type Subscription struct {
	events chan TileUpdated
	errors chan error
	cancel context.CancelFunc
	once   sync.Once
}

// Events returns the channel of tile events. It is closed when the
// subscription ends.
func (s *Subscription) Events() <-chan TileUpdated {
	return s.events
}

// Errors returns malformed-payload errors. Bad messages are skipped.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Implements io.Closer.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Subscribe listens on the namespace's tile channel. It returns once Redis has
// confirmed the subscription. Context cancellation also stops it.
func Subscribe(ctx context.Context, rdb *redis.Client, namespace string) (*Subscription, error) {
	pubsub := rdb.Subscribe(ctx, Channel(namespace))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to tile events: %w", err)
	}

	events := make(chan TileUpdated, subscriptionBuffer)
	errs := make(chan error, subscriptionBuffer)
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(events)
		defer close(errs)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event TileUpdated
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					select {
					case errs <- fmt.Errorf("failed to unmarshal tile event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case events <- event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{events: events, errors: errs, cancel: cancel}, nil
}
