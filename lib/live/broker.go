package live

import "sync/atomic"

// Message is anything the broker fans out.
type Message interface {
	Name() string
}

// Broker fans every published message out to all subscribers. A
// subscriber that falls behind loses messages rather than stalling the
// measurement.
type Broker struct {
	subCount  int64  // needs 64-bit alignment
	dropCount uint64 // needs 64-bit alignment

	stopCh    chan struct{}
	publishCh chan Message
	subCh     chan chan Message
	unsubCh   chan chan Message
}

// NewBroker returns a broker; call Start to run it. The channels are
// unbuffered so a Subscribe that returns has seen every earlier Publish.
func NewBroker() *Broker {
	return &Broker{
		stopCh:    make(chan struct{}),
		publishCh: make(chan Message),
		subCh:     make(chan chan Message),
		unsubCh:   make(chan chan Message),
	}
}

func (b *Broker) Start() {
	subs := map[chan Message]struct{}{}
	for {
		select {
		case <-b.stopCh:
			for msgCh := range subs {
				close(msgCh)
			}
			atomic.StoreInt64(&b.subCount, 0)
			return
		case msgCh := <-b.subCh:
			subs[msgCh] = struct{}{}
			atomic.StoreInt64(&b.subCount, int64(len(subs)))
		case msgCh := <-b.unsubCh:
			if _, ok := subs[msgCh]; ok {
				delete(subs, msgCh)
				close(msgCh)
			}
			atomic.StoreInt64(&b.subCount, int64(len(subs)))
		case msg := <-b.publishCh:
			for msgCh := range subs {
				select {
				case msgCh <- msg:
				default:
					atomic.AddUint64(&b.dropCount, 1)
				}
			}
		}
	}
}

// Stop ends Start and closes every subscriber channel.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe returns a channel receiving every message published from now
// on. It is closed by Unsubscribe or Stop.
func (b *Broker) Subscribe() chan Message {
	msgCh := make(chan Message, 1024)
	select {
	case b.subCh <- msgCh:
	case <-b.stopCh:
		close(msgCh)
	}
	return msgCh
}

func (b *Broker) Unsubscribe(msgCh chan Message) {
	select {
	case b.unsubCh <- msgCh:
	case <-b.stopCh:
	}
}

// Publish hands msg to the broker. After Stop it is dropped.
func (b *Broker) Publish(msg Message) {
	select {
	case b.publishCh <- msg:
	case <-b.stopCh:
	}
}

func (b *Broker) SubCount() int {
	return int(atomic.LoadInt64(&b.subCount))
}

func (b *Broker) DropCount() int {
	return int(atomic.LoadUint64(&b.dropCount))
}
