// Package uplink mirrors the device log to an MQTT broker and optionally
// accepts console input from it.
//
// Topics, relative to the broker URL prefix:
//
//	<device>/log         LogRecord protobuf per log line
//	<device>/meta        retained JSON status, cleared on exit
//	<device>/console/in  raw bytes injected into the console input
package uplink

import (
	"context"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/robotalks/ttyio/pkg/logger"
	"github.com/robotalks/ttyio/pkg/uplink/mqtt"
)

const (
	recordQueueDepth = 64
	inputQueueDepth  = 16
)

// Broker is the part of mqtt.Queue used by Uplink.
type Broker interface {
	Connect() paho.Token
	PubWith(topic string, payload []byte, qos byte, retain bool) paho.Token
	Sub(topic string, handler mqtt.Handler) *mqtt.Subscription
	Close() error
}

// Injector accepts remote console input.
type Injector interface {
	Inject(ctx context.Context, data []byte) error
}

// Meta is the retained device status document.
type Meta struct {
	DeviceID string    `json:"device-id"`
	BootID   string    `json:"boot-id"`
	Version  string    `json:"version,omitempty"`
	Online   bool      `json:"online"`
	Remote   bool      `json:"remote"`
	Started  time.Time `json:"started"`
}

// Stats are the uplink counters.
type Stats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Injected  uint64 `json:"injected"`
}

// Uplink publishes log records.
type Uplink struct {
	Broker   Broker
	DeviceID string
	BootID   string
	Version  string
	// Injector receives console input; nil disables remote input.
	Injector Injector

	records chan *LogRecord
	inputs  chan []byte
	started time.Time
	seq     uint64

	published uint64
	dropped   uint64
	injected  uint64
}

// New creates an Uplink on a broker.
func New(broker Broker, deviceID string) *Uplink {
	return &Uplink{
		Broker:   broker,
		DeviceID: deviceID,
		BootID:   uuid.New().String(),
		records:  make(chan *LogRecord, recordQueueDepth),
		inputs:   make(chan []byte, inputQueueDepth),
		started:  time.Now(),
	}
}

// NewFromURL connects a new mqtt.Queue from a broker URL. The retained meta
// is cleared by the broker if the connection drops.
func NewFromURL(brokerURL, deviceID string) (*Uplink, error) {
	opts, prefix, err := mqtt.ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(prefix+deviceID+"/meta", nil, 1, true)
	q := mqtt.NewQueue(opts, prefix)
	u := New(q, deviceID)
	q.OnConnect = func(*mqtt.Queue) { u.publishMeta(true) }
	return u, nil
}

// Name implements framework.Named.
func (u *Uplink) Name() string {
	return "uplink"
}

// Stats returns a snapshot of the counters.
func (u *Uplink) Stats() Stats {
	return Stats{
		Published: atomic.LoadUint64(&u.published),
		Dropped:   atomic.LoadUint64(&u.dropped),
		Injected:  atomic.LoadUint64(&u.injected),
	}
}

// Tap implements logger.Tap. Records are dropped when the queue is full.
func (u *Uplink) Tap(rec logger.Record) {
	msg := &LogRecord{
		Level:    int32(rec.Level),
		Time:     rec.Time.String(),
		Message:  rec.Message,
		DeviceId: u.DeviceID,
		BootId:   u.BootID,
		Seq:      atomic.AddUint64(&u.seq, 1),
	}
	select {
	case u.records <- msg:
	default:
		atomic.AddUint64(&u.dropped, 1)
	}
}

// Run implements framework.Runnable.
func (u *Uplink) Run(ctx context.Context) error {
	if err := mqtt.WaitToken(ctx, u.Broker.Connect()); err != nil {
		return err
	}
	defer u.Broker.Close()
	if u.Injector != nil {
		u.Broker.Sub(u.DeviceID+"/console/in", u.receiveInput)
	}
	u.publishMeta(true)
	for {
		select {
		case rec := <-u.records:
			u.publish(rec)
		case data := <-u.inputs:
			if err := u.Injector.Inject(ctx, data); err != nil {
				u.publishMeta(false)
				return err
			}
			atomic.AddUint64(&u.injected, uint64(len(data)))
		case <-ctx.Done():
			u.flush()
			u.publishMeta(false)
			return ctx.Err()
		}
	}
}

func (u *Uplink) receiveInput(topic string, payload []byte) {
	data := append([]byte(nil), payload...)
	select {
	case u.inputs <- data:
	default:
		glog.Warningf("uplink: console input dropped (%d bytes)", len(data))
	}
}

func (u *Uplink) flush() {
	for {
		select {
		case rec := <-u.records:
			u.publish(rec)
		default:
			return
		}
	}
}

func (u *Uplink) publish(rec *LogRecord) {
	data, err := EncodeRecord(rec)
	if err != nil {
		glog.Errorf("uplink: encode record: %v", err)
		return
	}
	u.Broker.PubWith(u.DeviceID+"/log", data, 0, false)
	atomic.AddUint64(&u.published, 1)
}

func (u *Uplink) publishMeta(online bool) {
	var payload []byte
	if online {
		var err error
		payload, err = jsoniter.Marshal(&Meta{
			DeviceID: u.DeviceID,
			BootID:   u.BootID,
			Version:  u.Version,
			Online:   true,
			Remote:   u.Injector != nil,
			Started:  u.started,
		})
		if err != nil {
			glog.Errorf("uplink: encode meta: %v", err)
			return
		}
	}
	token := u.Broker.PubWith(u.DeviceID+"/meta", payload, 1, true)
	if !online {
		token.WaitTimeout(time.Second)
	}
}
