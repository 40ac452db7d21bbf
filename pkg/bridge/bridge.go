// Package bridge exposes a locally attached device to remote hosts.
//
// Remote hosts talk envelopes (see transport.Envelope): data envelopes
// are written to the device, control envelopes clear its buffers and
// every byte the device produces is relayed back in data envelopes. The
// device serves one session at a time.
package bridge

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/eeprom.go/pkg/eeprom"
	"github.com/robotalks/eeprom.go/pkg/transport"
)

// ErrBusy indicates the device is used by another session.
var ErrBusy = errors.New("device in use by another session")

// Remote is the remote end of a session.
type Remote interface {
	Receive() (transport.Envelope, error)
	Send(transport.Envelope) error
	Close() error
}

// Defaults
const (
	DefaultPollInterval = time.Millisecond
	DefaultReadTimeout  = 100 * time.Millisecond
)

// Bridge relays a device to remote sessions.
type Bridge struct {
	Device       eeprom.Transport
	PollInterval time.Duration
	ReadTimeout  time.Duration
	Metrics      *Metrics

	busy int32
}

// New creates a Bridge.
func New(device eeprom.Transport) *Bridge {
	return &Bridge{
		Device:       device,
		PollInterval: DefaultPollInterval,
		ReadTimeout:  DefaultReadTimeout,
	}
}

// WithMetrics sets Metrics.
func (b *Bridge) WithMetrics(m *Metrics) *Bridge {
	b.Metrics = m
	return b
}

// Busy returns true if a session is in progress.
func (b *Bridge) Busy() bool {
	return atomic.LoadInt32(&b.busy) != 0
}

// Serve relays between the device and r until r disconnects, ctx is
// done or the device fails. r is closed on return. It returns nil if
// the remote disconnected.
func (b *Bridge) Serve(ctx context.Context, kind string, r Remote) error {
	defer r.Close()
	if !atomic.CompareAndSwapInt32(&b.busy, 0, 1) {
		if b.Metrics != nil {
			b.Metrics.Rejected.Inc()
		}
		return ErrBusy
	}
	defer atomic.StoreInt32(&b.busy, 0)
	if b.Metrics != nil {
		b.Metrics.Sessions.WithLabelValues(kind).Inc()
		b.Metrics.ActiveSessions.Inc()
		defer b.Metrics.ActiveSessions.Dec()
	}
	glog.Infof("%s session started", kind)

	if err := b.Device.ClearInput(); err != nil {
		return err
	}

	parent := ctx
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	var wg sync.WaitGroup
	var pumpErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		pumpErr = b.pump(ctx, r)
		cancel()
	}()
	go func() {
		defer wg.Done()
		<-ctx.Done()
		r.Close()
	}()

	err := b.relay(r)
	cancel()
	wg.Wait()
	switch {
	case parent.Err() != nil:
		err = parent.Err()
	case pumpErr != nil && pumpErr != context.Canceled:
		err = pumpErr
	}
	glog.Infof("%s session ended: %v", kind, err)
	return err
}

// relay forwards envelopes from the remote to the device.
func (b *Bridge) relay(r Remote) error {
	for {
		e, err := r.Receive()
		if err != nil {
			if err == io.EOF || errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return err
		}
		switch e.Kind {
		case transport.KindData:
			if _, err := b.Device.Write(e.Data); err != nil {
				return err
			}
			if b.Metrics != nil {
				b.Metrics.BytesToDevice.Add(float64(len(e.Data)))
			}
			glog.V(4).Infof("relay %d bytes to device", len(e.Data))
		case transport.KindClearInput:
			b.countClear("input")
			if err := b.Device.ClearInput(); err != nil {
				return err
			}
		case transport.KindClearOutput:
			b.countClear("output")
			if err := b.Device.ClearOutput(); err != nil {
				return err
			}
		}
	}
}

// pump forwards bytes produced by the device to the remote.
func (b *Bridge) pump(ctx context.Context, r Remote) error {
	for {
		n, err := b.Device.Available()
		if err != nil {
			return err
		}
		if n == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.PollInterval):
			}
			continue
		}
		data, err := b.Device.ReadExact(n, b.ReadTimeout)
		if errors.Is(err, transport.ErrTimeout) {
			// the input was cleared in between.
			continue
		}
		if err != nil {
			return err
		}
		if err := r.Send(transport.DataEnvelope(data)); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if b.Metrics != nil {
			b.Metrics.BytesToRemote.Add(float64(len(data)))
		}
	}
}

func (b *Bridge) countClear(buffer string) {
	glog.V(3).Infof("clear %s", buffer)
	if b.Metrics != nil {
		b.Metrics.Clears.WithLabelValues(buffer).Inc()
	}
}
