package server

import (
	"fmt"
	"sync"

	"lendboard/observability/metrics"
)

type topic string

func topicFor(chainID uint64, account string) topic {
	return topic(fmt.Sprintf("%d/%s", chainID, account))
}

type subscriber struct {
	ch chan []byte
}

// hub fans recomputed views out to websocket subscribers. Slow subscribers
// lose their oldest pending view rather than blocking publishers.
type hub struct {
	mu      sync.Mutex
	subs    map[topic]map[*subscriber]struct{}
	buffer  int
	metrics *metrics.EngineMetrics
}

func newHub(buffer int, m *metrics.EngineMetrics) *hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &hub{subs: make(map[topic]map[*subscriber]struct{}), buffer: buffer, metrics: m}
}

func (h *hub) subscribe(t topic) (*subscriber, func()) {
	sub := &subscriber{ch: make(chan []byte, h.buffer)}
	h.mu.Lock()
	set, ok := h.subs[t]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[t] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()
	h.metrics.AddSubscribers(1)

	var once sync.Once
	return sub, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[t], sub)
			if len(h.subs[t]) == 0 {
				delete(h.subs, t)
			}
			h.mu.Unlock()
			h.metrics.AddSubscribers(-1)
		})
	}
}

// publish delivers payload to every subscriber of t and reports how many
// older views were dropped to make room.
func (h *hub) publish(t topic, payload []byte) (dropped int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[t] {
		select {
		case sub.ch <- payload:
			continue
		default:
		}
		select {
		case <-sub.ch:
			dropped++
		default:
		}
		select {
		case sub.ch <- payload:
		default:
		}
	}
	return dropped
}

func (h *hub) count(t topic) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[t])
}
