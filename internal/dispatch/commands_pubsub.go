package dispatch

import (
	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"

	"github.com/memnode/memnode/internal/conn"
	"github.com/memnode/memnode/internal/protocol"
)

func (s *Server) cmdSubscribe(c *conn.Conn, args []string) protocol.Value {
	if len(args) != 2 {
		return errReply("ERR wrong number of arguments for 'subscribe' command")
	}
	channel := args[1]
	c.Subscribe(channel)
	count := s.PubSub.Subscribe(channel, c.ID)
	return protocol.Array(protocol.Bulk("subscribe"), protocol.Bulk(channel), protocol.Integer(int64(count)))
}

func (s *Server) cmdUnsubscribe(c *conn.Conn, args []string) protocol.Value {
	if len(args) != 2 {
		return errReply("ERR wrong number of arguments for 'unsubscribe' command")
	}
	channel := args[1]
	c.Unsubscribe(channel)
	s.PubSub.Unsubscribe(channel, c.ID)
	return protocol.Array(protocol.Bulk("unsubscribe"), protocol.Bulk(channel), protocol.Integer(0))
}

// cmdPublish delivers to every local subscriber of the channel and — when
// NATS is configured (SPEC_FULL.md §4 domain stack) — fans the same
// message out to other memnoded processes sharing the same NATS subject,
// so PUBLISH reaches subscribers connected to a sibling instance.
func (s *Server) cmdPublish(args []string) protocol.Value {
	if len(args) != 3 {
		return errReply("ERR wrong number of arguments for 'publish' command")
	}
	channel, message := args[1], args[2]

	delivered := s.deliverLocal(channel, message)

	if s.Nats != nil && s.Nats.IsConnected() {
		if err := s.Nats.Publish("memnode."+channel, []byte(message)); err != nil {
			cclog.Warnf("dispatch: NATS publish to channel %q failed: %v", channel, err)
		}
	}

	return protocol.Integer(int64(delivered))
}

// deliverLocal delivers a message frame to every connection subscribed to
// channel on this instance and returns how many received it.
func (s *Server) deliverLocal(channel, message string) int {
	frame := protocol.Encode(protocol.Array(protocol.Bulk("message"), protocol.Bulk(channel), protocol.Bulk(message)))
	subscribers := s.PubSub.Subscribers(channel)
	for _, id := range subscribers {
		s.deliverToConn(id, frame)
	}
	return len(subscribers)
}

// DeliverNatsMessage is the receive side of the cross-instance PUBLISH
// fan-out: cmd/memnoded subscribes to "memnode.>" on startup and calls this
// for every message a sibling instance published, so PUBLISH reaches local
// subscribers regardless of which memnoded process the original publisher
// was connected to. It never re-publishes to NATS, so sibling instances
// don't echo messages back and forth.
func (s *Server) DeliverNatsMessage(channel, message string) {
	s.deliverLocal(channel, message)
}
