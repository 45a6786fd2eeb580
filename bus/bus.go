// bus.go
package bus

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
)

// -----------------------------------------------------------------------------
// Tokens + Topics
// -----------------------------------------------------------------------------

// Token is a single element in a topic path. Any comparable value works;
// strings and ints are the norm. "+" matches one level, "#" the remainder.
type Token = any

// Topic is a sequence of tokens.
type Topic []Token

const (
	wildOne  = "+"
	wildRest = "#"
)

// T builds a Topic. It panics on non-comparable tokens, which could never
// be matched.
func T(tokens ...Token) Topic {
	for _, tok := range tokens {
		if !isComparable(tok) {
			panic("bus: non-comparable topic token")
		}
	}
	return Topic(tokens)
}

func isComparable(v any) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	_ = map[any]struct{}{v: {}}
	return true
}

func (t Topic) Len() int      { return len(t) }
func (t Topic) At(i int) Token { return t[i] }

// Append returns a new topic with tokens appended; t is not modified.
func (t Topic) Append(tokens ...Token) Topic {
	out := make(Topic, 0, len(t)+len(tokens))
	out = append(out, t...)
	return append(out, tokens...)
}

// String joins the tokens with '/'.
func (t Topic) String() string {
	var b []byte
	for i, tok := range t {
		if i > 0 {
			b = append(b, '/')
		}
		switch v := tok.(type) {
		case string:
			b = append(b, v...)
		case int:
			b = strconv.AppendInt(b, int64(v), 10)
		default:
			b = append(b, '?')
		}
	}
	return string(b)
}

// -----------------------------------------------------------------------------
// Message
// -----------------------------------------------------------------------------

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ReplyTo  Topic
}

// CanReply reports whether the sender asked for a reply.
func (m *Message) CanReply() bool { return len(m.ReplyTo) > 0 }

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// -----------------------------------------------------------------------------
// Trie node
// -----------------------------------------------------------------------------

type node struct {
	children map[Token]*node
	subs     []*Subscription
	retained *Message
}

func (n *node) child(tok Token, create bool) *node {
	if c, ok := n.children[tok]; ok || !create {
		return c
	}
	if n.children == nil {
		n.children = make(map[Token]*node)
	}
	c := &node{}
	n.children[tok] = c
	return c
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

type Bus struct {
	mu    sync.Mutex
	root  *node
	qLen  int
	reqID atomic.Uint64
}

// NewBus creates a new bus with the given subscription queue length.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{root: &node{}, qLen: queueLen}
}

// NewMessage builds a message; it does not publish it.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

// Publish delivers msg to every matching subscription. A retained message
// replaces the topic's retained value; a retained nil payload clears it.
// Wildcard tokens are not allowed in published topics.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.Retained {
		n := b.root
		for _, tok := range msg.Topic {
			n = n.child(tok, true)
		}
		if msg.Payload == nil {
			n.retained = nil
		} else {
			n.retained = msg
		}
	}
	b.deliver(b.root, msg.Topic, msg)
}

// deliver walks the subscription trie matching wildcards against topic.
func (b *Bus) deliver(n *node, rest Topic, msg *Message) {
	if n == nil {
		return
	}
	if h := n.child(wildRest, false); h != nil {
		send(h.subs, msg)
	}
	if len(rest) == 0 {
		send(n.subs, msg)
		return
	}
	b.deliver(n.child(rest[0], false), rest[1:], msg)
	b.deliver(n.child(wildOne, false), rest[1:], msg)
}

func send(subs []*Subscription, msg *Message) {
	for _, sub := range subs {
		select {
		case sub.ch <- msg:
		default:
			// drop oldest if queue full
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- msg:
			default:
			}
		}
	}
}

// subscribe inserts sub and replays matching retained messages.
func (b *Bus) subscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, tok := range sub.topic {
		n = n.child(tok, true)
	}
	n.subs = append(n.subs, sub)

	collectRetained(b.root, sub.topic, func(m *Message) {
		select {
		case sub.ch <- m:
		default:
		}
	})
}

// collectRetained visits retained messages whose topics match pattern.
func collectRetained(n *node, pattern Topic, fn func(*Message)) {
	if n == nil {
		return
	}
	if len(pattern) == 0 {
		if n.retained != nil {
			fn(n.retained)
		}
		return
	}
	switch pattern[0] {
	case wildRest:
		walkRetained(n, fn)
	case wildOne:
		for tok, c := range n.children {
			if tok == wildOne || tok == wildRest {
				continue
			}
			collectRetained(c, pattern[1:], fn)
		}
	default:
		collectRetained(n.child(pattern[0], false), pattern[1:], fn)
	}
}

func walkRetained(n *node, fn func(*Message)) {
	if n.retained != nil {
		fn(n.retained)
	}
	for _, c := range n.children {
		walkRetained(c, fn)
	}
}

// unsubscribe removes sub from the trie and prunes empty nodes.
func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	stack := make([]*node, 0, len(sub.topic))
	for _, tok := range sub.topic {
		stack = append(stack, n)
		if n = n.child(tok, false); n == nil {
			return
		}
	}
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}
	for i := len(sub.topic) - 1; i >= 0; i-- {
		parent := stack[i]
		key := sub.topic[i]
		c := parent.children[key]
		if len(c.subs) > 0 || len(c.children) > 0 || c.retained != nil {
			break
		}
		delete(parent.children, key)
	}
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

type Connection struct {
	bus  *Bus
	id   string
	mu   sync.Mutex
	subs []*Subscription
}

// NewConnection creates a new connection bound to this bus.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

// Publish sends a message via the bus.
func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

// Subscribe registers a subscription owned by this connection.
func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan *Message, c.bus.qLen),
		conn:  c,
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	c.bus.subscribe(sub)
	return sub
}

// Unsubscribe removes a subscription owned by this connection and closes its
// channel. Unsubscribing twice is a no-op.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.mu.Lock()
	found := false
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			found = true
			break
		}
	}
	c.mu.Unlock()
	if !found {
		return
	}
	c.bus.unsubscribe(sub)
	close(sub.ch)
}

// Disconnect closes all subscriptions of this connection.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, sub := range subs {
		c.bus.unsubscribe(sub)
		close(sub.ch)
	}
}

// -----------------------------------------------------------------------------
// Request–Reply
// -----------------------------------------------------------------------------

var ErrNoReply = errors.New("bus: no reply")

// Request assigns a unique ReplyTo to msg, subscribes to it and publishes
// msg. The caller owns the returned subscription.
func (c *Connection) Request(msg *Message) *Subscription {
	id := c.bus.reqID.Add(1)
	msg.ReplyTo = T("_reply", c.id, int(id))
	sub := c.Subscribe(msg.ReplyTo)
	c.Publish(msg)
	return sub
}

// RequestWait publishes msg and waits for the first reply or ctx expiry.
func (c *Connection) RequestWait(ctx context.Context, msg *Message) (*Message, error) {
	sub := c.Request(msg)
	defer c.Unsubscribe(sub)
	select {
	case m, ok := <-sub.Channel():
		if !ok {
			return nil, ErrNoReply
		}
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reply publishes payload to req.ReplyTo. It is a no-op if no reply was
// requested.
func (c *Connection) Reply(req *Message, payload any, retained bool) {
	if !req.CanReply() {
		return
	}
	c.Publish(&Message{Topic: req.ReplyTo, Payload: payload, Retained: retained})
}
