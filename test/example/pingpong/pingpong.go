package main

import (
	"context"
	"log"
	"time"

	"github.com/pkruse/crier"
	"github.com/pkruse/crier/pkg/notify"
)

const (
	topicPing = "ping"
	topicPong = "pong"
)

// consoleObserver prints every crier event; a real service would forward
// these to its monitoring instead.
type consoleObserver struct{}

func (o consoleObserver) OnLog(message string, data notify.Data) {
	log.Printf("[%s] %s", data.Service, message)
}

func (o consoleObserver) OnSuccess(message string, data notify.Data) {
	log.Printf("[%s] OK: %s", data.Service, message)
}

func (o consoleObserver) OnError(err error, data notify.Data) {
	log.Printf("[%s] ERROR: %v (func: %s)", data.Service, err, data.Func)
}

func RunPingPong(ctx context.Context) {

	pinger := newFacade(ctx, "pinger")
	ponger := newFacade(ctx, "ponger")

	// The ponger replies to whatever topic the envelope's meta points at.
	// The handlers are kept in variables since Unsubscribe matches them by
	// function reference.
	onPing := func(ctx context.Context, msg *crier.Message) {
		msg.Ack()
		env, err := crier.DecodeEnvelope(msg.Raw)
		if err != nil {
			log.Printf("dropping malformed ping: %v", err)
			return
		}
		log.Printf("ponger got ping: %v", env.Content)
		if env.Meta.ReplyTo == "" {
			return
		}
		if _, err = ponger.Send(ctx, env.Meta.ReplyTo, env.Content, &crier.Meta{CorrelationID: env.Meta.CorrelationID}, true); err != nil {
			log.Printf("ponger reply failed: %v", err)
		}
	}
	onPong := func(ctx context.Context, msg *crier.Message) {
		msg.Ack()
		log.Printf("pinger got pong back: %v", msg.Data)
	}

	if err := ponger.Subscribe(ctx, topicPing, "ponger-service", onPing, nil); err != nil {
		log.Fatalf("ponger.Subscribe() error: %v", err)
	}
	if err := pinger.Subscribe(ctx, topicPong, "pinger-service", onPong, &crier.SubscribeOptions{MaxInProgress: 4}); err != nil {
		log.Fatalf("pinger.Subscribe() error: %v", err)
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	seq := 0

	for {
		select {
		case <-ctx.Done():
			shutdown(pinger, ponger, onPing, onPong)
			return
		case <-ticker.C:
			seq++
			// Fire-and-forget: a failed publish shows up on the observer.
			_, err := pinger.Publish(ctx, topicPing,
				map[string]any{"seq": seq, "sentAt": time.Now().UTC().Format(time.RFC3339)},
				&crier.Meta{ReplyTo: topicPong}, true)
			if err != nil {
				log.Printf("pinger.Publish() error: %v", err)
			}
		}
	}
}

func newFacade(ctx context.Context, service string) *crier.Crier {

	config := crier.NewConfig(getEnv("PUBSUB_PROJECT_ID", "crier-demo"))
	config.KeyFilename = getEnv("PUBSUB_KEY_FILE", "")

	c, err := crier.New(service, consoleObserver{}, config)
	if err != nil {
		log.Fatalf("crier.New() error: %v", err)
	}
	if err = c.Init(ctx); err != nil {
		log.Fatalf("crier.Init() error: %v", err)
	}

	// Idempotent; whichever facade runs first creates them upstream.
	for _, topic := range []string{topicPing, topicPong} {
		if err = c.CreateTopic(ctx, topic); err != nil {
			log.Fatalf("crier.CreateTopic(%s) error: %v", topic, err)
		}
	}
	return c
}

func shutdown(pinger, ponger *crier.Crier, onPing, onPong crier.MessageHandler) {

	// Fresh context: the run context is already canceled at this point.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := ponger.Unsubscribe(ctx, topicPing, "ponger-service", onPing); err != nil {
		log.Printf("ponger.Unsubscribe() error: %v", err)
	}
	if err := pinger.Unsubscribe(ctx, topicPong, "pinger-service", onPong); err != nil {
		log.Printf("pinger.Unsubscribe() error: %v", err)
	}
	if err := pinger.Close(); err != nil {
		log.Printf("pinger.Close() error: %v", err)
	}
	if err := ponger.Close(); err != nil {
		log.Printf("ponger.Close() error: %v", err)
	}
}
