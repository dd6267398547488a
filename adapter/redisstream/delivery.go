package redisstream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trickstertwo/appbus"
)

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errors.New("redisstream transport is closed")

const (
	fieldID         = "id"
	fieldName       = "name"
	fieldPayload    = "payload"
	fieldProducedAt = "producedAt"
	fieldMetaPrefix = "meta:"
)

type delivery struct {
	t      *Transport
	stream string
	group  string
	id     string
	msg    *appbus.Message

	once sync.Once
}

func (d *delivery) Message() *appbus.Message { return d.msg }

func (d *delivery) Ack(ctx context.Context) error {
	var err error
	d.once.Do(func() { err = d.ack(ctx) })
	return err
}

func (d *delivery) ack(ctx context.Context) error {
	if err := d.t.client.XAck(ctx, d.stream, d.group, d.id).Err(); err != nil {
		return err
	}
	d.t.metrics.acked.Add(1)
	return nil
}

// Nack moves the entry to the dead letter stream when one is configured and
// acks the source entry. Without one, the entry stays pending for the claim loop.
func (d *delivery) Nack(ctx context.Context, reason error) error {
	var err error
	d.once.Do(func() {
		d.t.metrics.nacked.Add(1)
		dl := d.t.cfg.DeadLetter
		if dl == "" {
			return
		}

		values := encodeValues(d.msg)
		values["orig_stream"] = d.stream
		values["orig_id"] = d.id
		if reason != nil {
			values["error"] = reason.Error()
		}
		if err = d.t.client.XAdd(ctx, &redis.XAddArgs{
			Stream: d.t.Stream(dl),
			ID:     "*",
			Values: values,
		}).Err(); err != nil {
			return
		}
		d.t.metrics.deadLettered.Add(1)
		err = d.ack(ctx)
	})
	return err
}

// encodeValues flattens a message into stream entry fields.
func encodeValues(m *appbus.Message) map[string]any {
	vals := make(map[string]any, 4+len(m.Metadata))
	if m.ID != "" {
		vals[fieldID] = m.ID
	}
	vals[fieldName] = m.Name
	vals[fieldPayload] = m.Payload
	vals[fieldProducedAt] = m.ProducedAt.UnixNano()
	for k, v := range m.Metadata {
		vals[fieldMetaPrefix+k] = v
	}
	return vals
}

// decodeValues rebuilds a message from stream entry fields. The producer's
// ID wins over the entry ID when present.
func decodeValues(entryID string, vals map[string]any) *appbus.Message {
	msg := &appbus.Message{ID: entryID, Metadata: map[string]string{}}

	if v, ok := vals[fieldID]; ok {
		if s := asString(v); s != "" {
			msg.ID = s
		}
	}
	if v, ok := vals[fieldName]; ok {
		msg.Name = asString(v)
	}
	switch p := vals[fieldPayload].(type) {
	case []byte:
		msg.Payload = p
	case string:
		msg.Payload = []byte(p)
	}
	if ns, ok := toInt64(vals[fieldProducedAt]); ok && ns > 0 {
		msg.ProducedAt = time.Unix(0, ns)
	}
	for k, v := range vals {
		if key, ok := strings.CutPrefix(k, fieldMetaPrefix); ok {
			msg.Metadata[key] = asString(v)
		}
	}
	return msg
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case []byte:
		return toInt64(string(n))
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}
