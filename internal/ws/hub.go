package ws

import (
	"sync"
	"sync/atomic"

	"github.com/Harsh4r0ra/chat-cli/internal/metrics"
)

// Hub tracks the connected terminals so the server can report them and
// close them all on shutdown.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	quit       chan struct{}
	done       chan struct{}
	once       sync.Once
	online     int32
}

func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			atomic.StoreInt32(&h.online, int32(len(h.clients)))
			metrics.Terminals.Inc()
		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				c.shutdown()
				atomic.StoreInt32(&h.online, int32(len(h.clients)))
				metrics.Terminals.Dec()
			}
		case <-h.quit:
			for c := range h.clients {
				c.shutdown()
				metrics.Terminals.Dec()
			}
			h.clients = map[*Client]bool{}
			atomic.StoreInt32(&h.online, 0)
			return
		}
	}
}

// add reports false once the hub is closed.
func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Online is the number of connected terminals.
func (h *Hub) Online() int { return int(atomic.LoadInt32(&h.online)) }

// Close disconnects every terminal and stops accepting new ones.
func (h *Hub) Close() {
	h.once.Do(func() { close(h.quit) })
	<-h.done
}
