package notify

// Kind tags an Event with the observer callback it came from.
type Kind string

const (
	KindLog     Kind = "log"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Event is the channel form of one observer callback. Err is only set for
// KindError events; Message is always set.
type Event struct {
	Kind    Kind
	Message string
	Err     error
	Data    Data
}

// ChanObserver adapts a buffered channel to the Observer interface. Sends
// never block: when the buffer is full the event is dropped, so a slow or
// absent reader cannot stall publish or delivery paths.
type ChanObserver struct {
	ch chan Event
}

const defaultChanSize = 32

func NewChanObserver(size int) *ChanObserver {
	if size <= 0 {
		size = defaultChanSize
	}
	return &ChanObserver{ch: make(chan Event, size)}
}

// Events returns the channel to consume events from.
func (o *ChanObserver) Events() <-chan Event {
	return o.ch
}

func (o *ChanObserver) OnLog(message string, data Data) {
	o.send(Event{Kind: KindLog, Message: message, Data: data})
}

func (o *ChanObserver) OnSuccess(message string, data Data) {
	o.send(Event{Kind: KindSuccess, Message: message, Data: data})
}

func (o *ChanObserver) OnError(err error, data Data) {
	o.send(Event{Kind: KindError, Message: err.Error(), Err: err, Data: data})
}

func (o *ChanObserver) send(ev Event) {
	select {
	case o.ch <- ev:
	default:
	}
}
