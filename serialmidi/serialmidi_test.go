package serialmidi

import (
	"bytes"
	"context"
	"reflect"
	"testing"

	"gitlab.com/gomidi/midi/v2"
)

func decodeAll(input []byte) []midi.Message {
	var dec Decoder
	out := []midi.Message{}
	for _, b := range input {
		if msg, ok := dec.Feed(b); ok {
			out = append(out, msg)
		}
	}
	return out
}

func TestDecoder(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  []midi.Message
	}{
		{
			name:  "transport",
			input: []byte{0xFA, 0xF8, 0xFC, 0xFB},
			want:  []midi.Message{{0xFA}, {0xF8}, {0xFC}, {0xFB}},
		},
		{
			name:  "clock inside note on",
			input: []byte{0x90, 0x3C, 0xF8, 0x64},
			want:  []midi.Message{{0xF8}, {0x90, 0x3C, 0x64}},
		},
		{
			name:  "running status",
			input: []byte{0x90, 0x3C, 0x64, 0x40, 0x50},
			want:  []midi.Message{{0x90, 0x3C, 0x64}, {0x90, 0x40, 0x50}},
		},
		{
			name:  "program change has one data byte",
			input: []byte{0xC1, 0x05, 0x06},
			want:  []midi.Message{{0xC1, 0x05}, {0xC1, 0x06}},
		},
		{
			name:  "sysex skipped",
			input: []byte{0xF0, 0x7E, 0x01, 0xF8, 0x02, 0xF7, 0x80, 0x3C, 0x00},
			want:  []midi.Message{{0xF8}, {0x80, 0x3C, 0x00}},
		},
		{
			name:  "song position clears running status",
			input: []byte{0x90, 0x3C, 0x64, 0xF2, 0x00, 0x01, 0x3C, 0x64},
			want:  []midi.Message{{0x90, 0x3C, 0x64}, {0xF2, 0x00, 0x01}},
		},
		{
			name:  "data without status",
			input: []byte{0x3C, 0x64, 0xF8},
			want:  []midi.Message{{0xF8}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeAll(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got % X, want % X", got, tt.want)
			}
		})
	}
}

func TestListen(t *testing.T) {
	r := bytes.NewReader([]byte{0xFA, 0xF8, 0xF8, 0xFC})
	got := []midi.Message{}
	err := Listen(context.Background(), r, func(msg midi.Message) {
		got = append(got, msg)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 || !got[1].Is(midi.TimingClockMsg) || !got[3].Is(midi.StopMsg) {
		t.Errorf("got % X", got)
	}
}

func TestListenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	if err := Listen(ctx, bytes.NewReader([]byte{0xF8}), func(midi.Message) { called = true }); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Error("handler called after cancel")
	}
}
