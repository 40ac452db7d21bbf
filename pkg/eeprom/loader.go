package eeprom

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/eeprom.go/pkg/eeprom/protocol"
)

// RoundStats describes the loader state at the end of a round.
type RoundStats struct {
	Round        int
	Sent         int // total payload bytes sent
	Acknowledged int // total acknowledgment bytes drained
	Burst        int // payload bytes sent in this round
	Drained      int // acknowledgment bytes drained in this round
}

// Fill is the estimated number of bytes buffered by the device.
func (s RoundStats) Fill() int {
	return s.Sent - s.Acknowledged
}

// RoundObserver is notified after each loader round.
type RoundObserver interface {
	ObserveRound(RoundStats)
}

// ObserveRoundFunc is func type of RoundObserver.
type ObserveRoundFunc func(RoundStats)

// ObserveRound implements RoundObserver.
func (f ObserveRoundFunc) ObserveRound(s RoundStats) {
	f(s)
}

// Load streams data into the device starting at addr.
//
// The device has a small receive buffer and no flow control of its own.
// For every payload byte it has consumed it sends back one byte, so the
// number of bytes available to read is used as a running acknowledgment
// count. Load keeps the estimate sent-acknowledged at or below
// TargetFill. This is best effort: the estimate assumes bytes are
// delayed but never lost.
//
// onProgress, if not nil, receives the number of bytes acknowledged each
// time acknowledgments are drained. An empty data completes immediately
// without touching the transport.
func (p *Programmer) Load(ctx context.Context, addr uint16, data []byte, onProgress ProgressFunc) error {
	count, err := protocol.Length(len(data))
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	return p.run(ctx, func() error {
		return p.load(ctx, addr, data, count, onProgress)
	})
}

func (p *Programmer) load(ctx context.Context, addr uint16, data []byte, count uint16, onProgress ProgressFunc) error {
	t := p.Transport
	if err := t.ClearInput(); err != nil {
		return transportError("load", err, 0)
	}
	if err := p.send(protocol.EncodeBulkLoad(addr, count)); err != nil {
		return err
	}

	targetFill := p.TargetFill
	if targetFill <= 0 {
		targetFill = DefaultTargetFill
	}
	total := len(data)
	stats := RoundStats{}
	lastAck := time.Now()
	for stats.Sent < total {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Round++
		// stall sending if the device is behind, but keep polling.
		burst := targetFill - stats.Fill()
		if burst < 0 {
			burst = 0
		}
		if rem := total - stats.Sent; burst > rem {
			burst = rem
		}
		stats.Burst = burst
		if burst > 0 {
			if _, err := t.Write(data[stats.Sent : stats.Sent+burst]); err != nil {
				return transportError("load", err, 0)
			}
			stats.Sent += burst
		}

		drained, err := p.drainAvailable(onProgress)
		if err != nil {
			return err
		}
		stats.Drained = drained
		stats.Acknowledged += drained
		if stats.Acknowledged > stats.Sent {
			return &AckOverrunError{Sent: stats.Sent, Acknowledged: stats.Acknowledged}
		}
		if glog.V(4) {
			glog.Infof("load round %d: sent=%d acked=%d fill=%d", stats.Round, stats.Sent, stats.Acknowledged, stats.Fill())
		}
		if o := p.Observer; o != nil {
			o.ObserveRound(stats)
		}

		if drained > 0 {
			lastAck = time.Now()
		} else if burst == 0 {
			if p.DrainTimeout > 0 && time.Since(lastAck) > p.DrainTimeout {
				return &DeviceSilenceError{Op: "load", Waited: time.Since(lastAck)}
			}
			p.idle()
		}
	}

	if err := p.waitDrained(ctx, total-stats.Acknowledged, stats, onProgress); err != nil {
		return err
	}
	if err := t.ClearInput(); err != nil {
		return transportError("load", err, 0)
	}
	return nil
}

// drainAvailable reads and discards everything available right now.
func (p *Programmer) drainAvailable(onProgress ProgressFunc) (int, error) {
	n, err := p.Transport.Available()
	if err != nil {
		return 0, transportError("load", err, 0)
	}
	if n <= 0 {
		return 0, nil
	}
	if _, err = p.readExact("load", n, p.ReadTimeout); err != nil {
		return 0, err
	}
	if onProgress != nil {
		onProgress(n)
	}
	return n, nil
}

// waitDrained waits until the acknowledgments of all in-flight bytes
// are available, then drains them.
func (p *Programmer) waitDrained(ctx context.Context, remaining int, stats RoundStats, onProgress ProgressFunc) error {
	last, idleSince := -1, time.Now()
	for {
		n, err := p.Transport.Available()
		if err != nil {
			return transportError("load", err, 0)
		}
		if n > remaining {
			return &AckOverrunError{Sent: stats.Sent, Acknowledged: stats.Acknowledged + n}
		}
		if n == remaining {
			break
		}
		if n != last {
			last, idleSince = n, time.Now()
		} else if p.DrainTimeout > 0 && time.Since(idleSince) > p.DrainTimeout {
			return &DeviceSilenceError{Op: "load: drain", Waited: time.Since(idleSince)}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		p.idle()
	}
	if remaining == 0 {
		return nil
	}
	if _, err := p.readExact("load: drain", remaining, p.ReadTimeout); err != nil {
		return err
	}
	if onProgress != nil {
		onProgress(remaining)
	}
	return nil
}
