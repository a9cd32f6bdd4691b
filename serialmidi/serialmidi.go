// Package serialmidi reads MIDI bytes from a serial line, e.g. a DIN-MIDI
// adapter or a microcontroller forwarding a drum machine clock.
package serialmidi

import (
	"context"
	"errors"
	"io"

	"github.com/albenik/go-serial/v2"
	charmlog "github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
)

const (
	DEFAULT_BAUD = 31250
	READ_TIMEOUT = 100 // ms, bounds how long Listen takes to notice ctx
)

// Ports lists the serial ports found on the system.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

func Open(name string, baud int) (*serial.Port, error) {
	if baud <= 0 {
		baud = DEFAULT_BAUD
	}
	port, err := serial.Open(name,
		serial.WithBaudrate(baud),
		serial.WithReadTimeout(READ_TIMEOUT),
	)
	if err != nil {
		return nil, err
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, err
	}
	return port, nil
}

// Decoder turns a raw byte stream into complete messages. Real-time bytes may
// arrive between the bytes of another message and come out immediately.
type Decoder struct {
	status byte // running status, 0 when none
	data   []byte
	sysex  bool
}

func dataLength(status byte) int {
	switch {
	case status >= 0xF0:
		switch status {
		case 0xF1, 0xF3:
			return 1
		case 0xF2:
			return 2
		default:
			return 0
		}
	case status&0xF0 == 0xC0, status&0xF0 == 0xD0:
		return 1
	default:
		return 2
	}
}

// Feed consumes one byte and returns a message once one is complete.
func (d *Decoder) Feed(b byte) (midi.Message, bool) {
	switch {
	case b >= 0xF8:
		return midi.Message{b}, true
	case b == 0xF0:
		d.sysex = true
		d.status = 0
		return nil, false
	case b == 0xF7:
		d.sysex = false
		return nil, false
	case b >= 0x80:
		d.sysex = false
		d.status = b
		d.data = d.data[:0]
		if b >= 0xF0 {
			// system common, no running status
			if dataLength(b) == 0 {
				d.status = 0
				if b == 0xF6 {
					return midi.Message{b}, true
				}
			}
		}
		return nil, false
	}

	if d.sysex || d.status == 0 {
		return nil, false
	}
	d.data = append(d.data, b)
	if len(d.data) < dataLength(d.status) {
		return nil, false
	}
	msg := append(midi.Message{d.status}, d.data...)
	d.data = d.data[:0]
	if d.status >= 0xF0 {
		d.status = 0
	}
	return msg, true
}

// Listen decodes r until ctx ends or r fails, handing every message to handle.
func Listen(ctx context.Context, r io.Reader, handle func(midi.Message)) error {
	logger := charmlog.FromContext(ctx)
	var dec Decoder
	buf := make([]byte, 64)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			if msg, ok := dec.Feed(b); ok {
				handle(msg)
			}
		}
		if errors.Is(err, io.EOF) {
			logger.Info("serial input closed")
			return nil
		}
		if err != nil {
			return err
		}
	}
}
