package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/npezzotti/wave/internal/logging"
	"github.com/npezzotti/wave/internal/stats"
	"github.com/rs/zerolog"
)

const defaultHeartbeat = 30 * time.Second

var ErrShuttingDown = errors.New("hub is shutting down")

// Hub owns the per-room fan-out. Only the Run goroutine touches rooms and
// clients.
type Hub struct {
	log            zerolog.Logger
	events         EventSource
	stats          stats.StatsProvider
	heartbeat      time.Duration
	registerChan   chan *Client
	deRegisterChan chan *Client
	countChan      chan chan int
	rooms          map[string]*Room
	roomClients    map[string]int
	clients        map[*Client]struct{}
	stop           chan struct{}
	stopOnce       sync.Once
	done           chan struct{}
}

func NewHub(logger zerolog.Logger, events EventSource, statsProvider stats.StatsProvider, heartbeat time.Duration) *Hub {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	statsProvider.RegisterMetric(stats.ActiveRooms)
	statsProvider.RegisterMetric(stats.StreamClients)

	return &Hub{
		log:            logging.WithComponent(logger, "hub"),
		events:         events,
		stats:          statsProvider,
		heartbeat:      heartbeat,
		registerChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		countChan:      make(chan chan int),
		rooms:          make(map[string]*Room),
		roomClients:    make(map[string]int),
		clients:        make(map[*Client]struct{}),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case c := <-h.registerChan:
			h.addClient(c)
		case c := <-h.deRegisterChan:
			h.removeClient(c)
		case reply := <-h.countChan:
			reply <- len(h.rooms)
		case <-h.stop:
			h.log.Info().Int("clients", len(h.clients)).Msg("closing streams")
			for c := range h.clients {
				c.stopClient()
			}
			for id := range h.rooms {
				h.unloadRoom(id)
			}
			close(h.done)
			return
		}
	}
}

func (h *Hub) addClient(c *Client) {
	r, ok := h.rooms[c.roomId]
	if !ok {
		r = newRoom(c.roomId, h.log)
		go r.start()
		r.unsubscribe = h.events.Subscribe(c.roomId, r.enqueue)
		h.rooms[c.roomId] = r
		h.stats.Incr(stats.ActiveRooms)
		h.log.Debug().Str("room_id", c.roomId).Msg("room loaded")
	}

	h.clients[c] = struct{}{}
	h.roomClients[c.roomId]++
	h.stats.Incr(stats.StreamClients)
	r.joinChan <- c
}

func (h *Hub) removeClient(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	h.stats.Decr(stats.StreamClients)

	r, ok := h.rooms[c.roomId]
	if !ok {
		return
	}
	r.leaveChan <- c

	h.roomClients[c.roomId]--
	if h.roomClients[c.roomId] <= 0 {
		h.unloadRoom(c.roomId)
	}
}

// unloadRoom detaches the room from the broker before stopping it, so no
// listener outlives its room.
func (h *Hub) unloadRoom(id string) {
	r, ok := h.rooms[id]
	if !ok {
		return
	}

	r.unsubscribe()
	close(r.exit)
	<-r.done

	delete(h.rooms, id)
	delete(h.roomClients, id)
	h.stats.Decr(stats.ActiveRooms)
	h.log.Debug().Str("room_id", id).Msg("room unloaded")
}

// Register attaches c to its room and returns once c will receive every
// event emitted afterwards.
func (h *Hub) Register(c *Client) error {
	select {
	case h.registerChan <- c:
	case <-h.stop:
		return ErrShuttingDown
	}

	select {
	case <-c.joined:
		return nil
	case <-h.done:
		return ErrShuttingDown
	}
}

func (h *Hub) deRegister(c *Client) {
	select {
	case h.deRegisterChan <- c:
	case <-h.done:
	}
}

// RoomCount reports how many rooms currently hold a broker listener.
func (h *Hub) RoomCount() int {
	reply := make(chan int, 1)
	select {
	case h.countChan <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

func (h *Hub) Shutdown(ctx context.Context) error {
	h.stopOnce.Do(func() { close(h.stop) })

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NewClient creates a stream client for roomId.
func (h *Hub) NewClient(roomId string) *Client {
	return newClient(roomId, h, h.log)
}
