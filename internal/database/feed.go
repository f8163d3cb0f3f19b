package database

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/npezzotti/wave/internal/types"
	"github.com/rs/zerolog"
)

const (
	feedMinReconnect = 10 * time.Second
	feedMaxReconnect = time.Minute
	feedFetchTimeout = 5 * time.Second
)

// feedListenTimeout bounds how long a feed waits for its first connection
// before logging. The channel stays registered and is resynced on reconnect.
var feedListenTimeout = 10 * time.Second

// feedListener is the part of *pq.Listener a room feed uses.
type feedListener interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Close() error
}

// roomChannel matches the channel used by the messages_notify trigger.
func roomChannel(roomId string) string {
	sum := md5.Sum([]byte(roomId))
	return "wave_room_" + hex.EncodeToString(sum[:])
}

// roomFeed turns message notifications for one room into message events.
type roomFeed struct {
	roomId   string
	listener feedListener
	done     chan struct{}
	once     sync.Once
}

func (s *PgStore) pqListener(log zerolog.Logger) feedListener {
	return pq.NewListener(s.dsn, feedMinReconnect, feedMaxReconnect, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn().Err(err).Int("event", int(ev)).Msg("room feed connection")
		}
	})
}

// openFeed registers a feed for the room if none exists. It never waits
// for the database: LISTEN is issued from a separate goroutine.
func (s *PgStore) openFeed(roomId string) {
	s.feedsLock.Lock()
	defer s.feedsLock.Unlock()

	if s.closed {
		return
	}
	if _, ok := s.feeds[roomId]; ok {
		return
	}

	log := s.log.With().Str("room_id", roomId).Logger()
	feed := &roomFeed{
		roomId:   roomId,
		listener: s.dialFeed(log),
		done:     make(chan struct{}),
	}
	s.feeds[roomId] = feed

	go s.watch(feed, log)
	go s.listen(feed, log)
}

func (s *PgStore) listen(feed *roomFeed, log zerolog.Logger) {
	errc := make(chan error, 1)
	go func() {
		errc <- feed.listener.Listen(roomChannel(feed.roomId))
	}()

	timer := time.NewTimer(feedListenTimeout)
	defer timer.Stop()

	for {
		select {
		case <-feed.done:
			return
		case <-timer.C:
			log.Warn().Dur("waited", feedListenTimeout).Msg("room feed not connected yet")
		case err := <-errc:
			if err == nil {
				log.Debug().Msg("room feed listening")
				return
			}
			select {
			case <-feed.done:
				return
			default:
			}
			// drop the feed so the next subscriber of the room opens a new one
			log.Error().Err(err).Msg("listen on room feed")
			s.dropFeed(feed)
			return
		}
	}
}

// closeFeed closes the room's feed unless a listener subscribed again.
func (s *PgStore) closeFeed(roomId string) {
	s.feedsLock.Lock()
	feed, ok := s.feeds[roomId]
	if ok && s.listeners.count(roomId) > 0 {
		ok = false
	}
	if ok {
		delete(s.feeds, roomId)
	}
	s.feedsLock.Unlock()

	if ok {
		feed.close()
	}
}

func (s *PgStore) dropFeed(feed *roomFeed) {
	s.feedsLock.Lock()
	if s.feeds[feed.roomId] == feed {
		delete(s.feeds, feed.roomId)
	}
	s.feedsLock.Unlock()

	feed.close()
}

func (s *PgStore) hasFeed(roomId string) bool {
	s.feedsLock.Lock()
	defer s.feedsLock.Unlock()
	_, ok := s.feeds[roomId]
	return ok
}

func (s *PgStore) watch(feed *roomFeed, log zerolog.Logger) {
	notify := feed.listener.NotificationChannel()
	for {
		select {
		case <-feed.done:
			return
		case n, ok := <-notify:
			if !ok {
				return
			}
			// nil after a reconnect; inserts made while disconnected are not replayed
			if n == nil {
				continue
			}
			s.deliver(feed.roomId, n.Extra, log)
		}
	}
}

func (s *PgStore) deliver(roomId, messageId string, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), feedFetchTimeout)
	defer cancel()

	msg, err := s.getMessage(ctx, roomId, messageId)
	if err != nil {
		log.Error().Err(err).Str("message_id", messageId).Msg("resolve notified message")
		return
	}

	s.listeners.emit(roomId, types.NewRoomEvent(types.EventMessage, msg))
}

func (f *roomFeed) close() {
	f.once.Do(func() {
		close(f.done)
		f.listener.Close()
	})
}
