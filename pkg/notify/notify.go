// Package notify routes operational events from crier to an injected
// Observer and to the log framework. It is exported so applications can
// implement their own observers, or reuse ChanObserver when a channel fits
// better than callbacks.
package notify

import (
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/teltech/logger"
)

// Data carries the contextual fields attached to every event. Service and
// Instance identify the emitting crier instance and are filled in by the
// Notifier; the remaining context fields are set by the operation that
// emitted the event, where applicable.
type Data struct {
	Service  string
	Instance string

	Topic        string
	Subscription string

	// AuthMethod names the credential source chosen during Init. It never
	// contains key material.
	AuthMethod string

	// Timestamp of the event on the format "2006-01-02T15:04:05.000000Z"
	Timestamp string

	// Location and stack info, from where the event was sent.
	// Func is always provided.
	// File, Line and StackTrace are added for error events.
	Func       string
	File       string
	Line       int
	StackTrace string
}

// Observer receives lifecycle events from a crier instance. Implementations
// must not block; slow consumers should hand off to their own buffering (see
// ChanObserver). All methods may be called concurrently.
type Observer interface {

	// OnLog reports informational lifecycle steps, e.g. which auth method
	// Init selected.
	OnLog(message string, data Data)

	// OnSuccess reports completed operations, e.g. a topic created or a
	// subscription attached.
	OnSuccess(message string, data Data)

	// OnError reports failures, including ones with no caller to return to,
	// such as a fire-and-forget publish failing after its Publish call
	// already returned.
	OnError(err error, data Data)
}

// Notifier fans events out to an Observer and to the log framework. A nil
// observer disables the callback side and a nil log disables the logging
// side; enrichment happens regardless.
type Notifier struct {
	obs         Observer
	log         *logger.Log
	callerLevel int
	service     string
	instance    string
}

// New creates a Notifier for one crier instance. For a proper value on the
// reported caller func name, set callerLevel to:
//
//	2 - if the notifying func calls Log/Success/Error directly
//	3 - if the notifying func is two levels above
//	... etc
func New(obs Observer, log *logger.Log, callerLevel int, service, instance string) *Notifier {
	return &Notifier{
		obs:         obs,
		log:         log,
		callerLevel: callerLevel,
		service:     service,
		instance:    instance,
	}
}

func (n *Notifier) Service() string {
	return n.service
}

func (n *Notifier) Instance() string {
	return n.instance
}

// Log emits an informational event.
func (n *Notifier) Log(data Data, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	n.enrich(&data, false)
	if n.obs != nil {
		n.obs.OnLog(msg, data)
	}
	if n.log != nil {
		n.log.Infof(logFmt, n.service, n.instance, scopeTag(data), msg)
	}
}

// Success emits an operation-completed event.
func (n *Notifier) Success(data Data, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	n.enrich(&data, false)
	if n.obs != nil {
		n.obs.OnSuccess(msg, data)
	}
	if n.log != nil {
		n.log.Infof(logFmt, n.service, n.instance, scopeTag(data), msg)
	}
}

// Error emits a failure event, enriched with file, line and stack trace.
func (n *Notifier) Error(err error, data Data) {
	n.enrich(&data, true)
	if n.obs != nil {
		n.obs.OnError(err, data)
	}
	if n.log != nil {
		n.log.Errorf(logFmt, n.service, n.instance, scopeTag(data), err.Error())
	}
}

const logFmt = "[%s:%s]%s %s"

func scopeTag(data Data) string {
	switch {
	case data.Topic != "" && data.Subscription != "":
		return fmt.Sprintf("(topic: %s, subscription: %s)", data.Topic, data.Subscription)
	case data.Topic != "":
		return fmt.Sprintf("(topic: %s)", data.Topic)
	case data.Subscription != "":
		return fmt.Sprintf("(subscription: %s)", data.Subscription)
	}
	return ""
}

func (n *Notifier) enrich(data *Data, withTrace bool) {

	data.Service = n.service
	data.Instance = n.instance
	if data.Timestamp == "" {
		data.Timestamp = time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
	}

	pc, file, line, _ := runtime.Caller(n.callerLevel)
	funcName := "unknown"
	if f := runtime.FuncForPC(pc); f != nil {
		_, funcName = filepath.Split(f.Name())
	}
	data.Func = funcName

	if withTrace {
		data.File = file
		data.Line = line

		stackTrace := make([]byte, 1024)
		stackTrace = stackTrace[:runtime.Stack(stackTrace, false)]
		data.StackTrace = string(stackTrace)
	}
}
