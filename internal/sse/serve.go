package sse

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Serve streams sub to w until the client goes away, the broker drops the
// subscriber, or a write fails. Initial messages go out before any queued
// event. The subscriber is always unsubscribed on return.
//
// Callers that need a snapshot must Subscribe first and read the snapshot
// afterwards, passing it as an initial message. Events published in between
// are queued behind it, so nothing is lost; they may repeat state the
// snapshot already shows.
func Serve(w http.ResponseWriter, r *http.Request, b *Broker, sub *Subscriber, writeTimeout time.Duration, initial ...Message) error {
	defer b.Unsubscribe(sub)

	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	write := func(m Message) error {
		if writeTimeout > 0 {
			err := rc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err != nil && !errors.Is(err, http.ErrNotSupported) {
				return err
			}
		}
		if err := WriteMessage(w, m); err != nil {
			return err
		}
		return rc.Flush()
	}

	for _, m := range initial {
		if err := write(m); err != nil {
			return err
		}
	}
	for {
		select {
		case <-r.Context().Done():
			return nil
		case m := <-sub.Events():
			if err := write(m); err != nil {
				return err
			}
		case <-sub.Done():
			// drain what was queued before the close, e.g. a terminal event
			for {
				select {
				case m := <-sub.Events():
					if err := write(m); err != nil {
						return err
					}
				default:
					return nil
				}
			}
		}
	}
}

// WriteMessage writes one event in text/event-stream framing.
func WriteMessage(w io.Writer, m Message) error {
	var buf bytes.Buffer
	if m.ID != "" {
		fmt.Fprintf(&buf, "id: %s\n", m.ID)
	}
	fmt.Fprintf(&buf, "event: %s\n", m.Name)
	for _, line := range bytes.Split(m.Data, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}
