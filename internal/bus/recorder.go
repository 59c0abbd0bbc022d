package bus

// Recorder captures every message published on a bus. Used by tests and by the
// API to report what a command produced.
type Recorder struct {
	Messages []Message
	stop     func()
}

// Record attaches a recorder to b.
func Record(b *Bus) *Recorder {
	r := &Recorder{}
	r.stop = b.SubscribeAll(func(m Message) {
		r.Messages = append(r.Messages, m)
	})
	return r
}

// Stop detaches the recorder.
func (r *Recorder) Stop() {
	if r.stop != nil {
		r.stop()
		r.stop = nil
	}
}

// Count returns how many messages were seen on ch.
func (r *Recorder) Count(ch Channel) int {
	n := 0
	for _, m := range r.Messages {
		if m.Channel == ch {
			n++
		}
	}
	return n
}

// Last returns the most recent message on ch.
func (r *Recorder) Last(ch Channel) (Message, bool) {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Channel == ch {
			return r.Messages[i], true
		}
	}
	return Message{}, false
}

// Channels returns the channel of every recorded message in order.
func (r *Recorder) Channels() []Channel {
	out := make([]Channel, len(r.Messages))
	for i, m := range r.Messages {
		out[i] = m.Channel
	}
	return out
}
