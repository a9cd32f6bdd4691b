package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/JeanRibes/step-sequencer/music"
	"github.com/JeanRibes/step-sequencer/serialmidi"
	. "github.com/JeanRibes/step-sequencer/shared"
	"github.com/JeanRibes/step-sequencer/ui"

	charmlog "github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

const VIRTUAL_PORT = "step-sequencer"

func main() {
	configFile := flag.String("config", "config.yaml", "config file")
	inPort := flag.String("input", "", "MIDI input port name (clock, transport and keyboard)")
	outPort := flag.String("output", "", "MIDI output port name")
	serialPort := flag.String("serial", "", "serial port delivering the MIDI clock, e.g. /dev/ttyUSB0")
	baud := flag.Int("baud", 0, "serial baud rate")
	fileName := flag.String("file", "", "pattern file to load")
	headless := flag.Bool("headless", false, "no terminal UI, only follow the clock")
	debug := flag.Bool("debug", false, "debug logging")
	list := flag.Bool("list", false, "list MIDI and serial ports and exit")
	flag.Parse()

	defer midi.CloseDriver()

	if *list {
		listPorts(os.Stdout)
		return
	}

	cfg, err := LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *inPort != "" {
		cfg.Ports.Input = *inPort
	}
	if *outPort != "" {
		cfg.Ports.Output = *outPort
	}
	if *serialPort != "" {
		cfg.Serial.Port = *serialPort
	}
	if *baud != 0 {
		cfg.Serial.Baud = *baud
	}
	if *fileName != "" {
		cfg.File = *fileName
	}
	if *debug {
		cfg.Log.Level = "debug"
	}

	logOut := io.Writer(os.Stderr)
	if cfg.Log.File != "" && cfg.Log.File != "-" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	logger := charmlog.NewWithOptions(logOut, charmlog.Options{
		Level:           cfg.LogLevel(),
		ReportCaller:    true,
		ReportTimestamp: true,
		Prefix:          "main",
	})

	params, err := cfg.Parameters()
	if err != nil {
		logger.Fatal(err)
	}
	engine := music.NewEngine(nil,
		music.WithParameters(params),
		music.WithLogger(logger.WithPrefix("engine")),
	)
	if cfg.File != "" {
		if err := engine.LoadFromFile(cfg.File); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Error("load pattern file", "file", cfg.File, "err", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = context.WithValue(ctx, charmlog.ContextKey, logger)

	SinkUI := make(chan Message, 64)
	SinkLoop := make(chan Message, 64)
	MasterControl := make(chan Message, 1)

	if cfg.Serial.Port != "" {
		if err := startSerialClock(ctx, cfg, engine); err != nil {
			logger.Fatal("serial clock", "port", cfg.Serial.Port, "err", err)
		}
	}

	supervised := make(chan struct{})
	go func() {
		supervise(ctx, cancel, cfg, engine, SinkUI, SinkLoop, MasterControl)
		close(supervised)
	}()

	if *headless {
		drainUI(ctx, SinkUI)
	} else {
		prefs, err := ui.LoadPreferences(cfg.Preferences)
		if err != nil {
			logger.Warn("preferences", "err", err)
		}
		if err := ui.Run(ctx, engine, prefs, SinkUI, SinkLoop, MasterControl); err != nil {
			logger.Error("ui", "err", err)
		}
	}
	cancel()
	<-supervised
	logger.Info("bye")
}

/*
supervise keeps a MIDI loop running on the configured ports. RestartMIDI
rebinds the ports, Quit stops everything. A loop that dies on a port error
waits for the next RestartMIDI.
*/
func supervise(ctx context.Context, cancel func(), cfg Config, engine *music.Engine, SinkUI, SinkLoop, MasterControl chan Message) {
	logger := charmlog.FromContext(ctx)
	for {
		in, out, err := openPorts(cfg, logger)
		var loopDone chan struct{}
		cancelLoop := func() {}
		if err != nil {
			logger.Error("open ports", "err", err)
			notify(SinkUI, Message{Type: Error, String: err.Error()})
		} else {
			var loopCtx context.Context
			loopCtx, cancelLoop = context.WithCancel(ctx)
			loopDone = make(chan struct{})
			go func() {
				music.Run(loopCtx, cancelLoop, in, out, engine, SinkUI, SinkLoop)
				close(loopDone)
			}()
		}
		stopLoop := func() {
			cancelLoop()
			if loopDone != nil {
				<-loopDone
			}
			closePorts(in, out, logger)
		}

	wait:
		for {
			select {
			case <-ctx.Done():
				stopLoop()
				return
			case <-loopDone:
				logger.Warn("loop died, press r to reconnect")
				loopDone = nil
			case msg := <-MasterControl:
				switch msg.Type {
				case Quit:
					logger.Info("quit")
					stopLoop()
					cancel()
					return
				case RestartMIDI:
					logger.Info("restarting MIDI")
					stopLoop()
					break wait
				default:
					logger.Warn("unknown control message", "type", msg.Type)
				}
			}
		}
	}
}

func openPorts(cfg Config, logger *charmlog.Logger) (drivers.In, drivers.Out, error) {
	drv, ok := drivers.Get().(*rtmididrv.Driver)
	in, err := midi.FindInPort(cfg.Ports.Input)
	if err != nil {
		if !ok {
			return nil, nil, fmt.Errorf("input %q: %w", cfg.Ports.Input, err)
		}
		logger.Warn("can't find input, opening a virtual one", "name", cfg.Ports.Input)
		if in, err = drv.OpenVirtualIn(VIRTUAL_PORT); err != nil {
			return nil, nil, err
		}
	}
	out, err := midi.FindOutPort(cfg.Ports.Output)
	if err != nil {
		if !ok {
			in.Close()
			return nil, nil, fmt.Errorf("output %q: %w", cfg.Ports.Output, err)
		}
		logger.Warn("can't find output, opening a virtual one", "name", cfg.Ports.Output)
		if out, err = drv.OpenVirtualOut(VIRTUAL_PORT); err != nil {
			in.Close()
			return nil, nil, err
		}
	}
	return in, out, nil
}

func closePorts(in drivers.In, out drivers.Out, logger *charmlog.Logger) {
	if in != nil && in.IsOpen() {
		if err := in.Close(); err != nil {
			logger.Warn("close input", "err", err)
		}
	}
	if out != nil && out.IsOpen() {
		if err := out.Close(); err != nil {
			logger.Warn("close output", "err", err)
		}
	}
}

func startSerialClock(ctx context.Context, cfg Config, engine *music.Engine) error {
	port, err := serialmidi.Open(cfg.Serial.Port, cfg.Serial.Baud)
	if err != nil {
		return err
	}
	logger := charmlog.FromContext(ctx).WithPrefix("serial")
	logger.Info("listening", "port", cfg.Serial.Port)
	go func() {
		defer port.Close()
		err := serialmidi.Listen(context.WithValue(ctx, charmlog.ContextKey, logger), port, engine.HandleMessage)
		if err != nil {
			logger.Error("read", "err", err)
		}
	}()
	return nil
}

func notify(SinkUI chan Message, msg Message) {
	select {
	case SinkUI <- msg:
	default:
	}
}

// drainUI replaces the editor when headless: errors go to the log.
func drainUI(ctx context.Context, SinkUI chan Message) {
	logger := charmlog.FromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-SinkUI:
			if msg.Type == Error {
				logger.Error(msg.String)
			}
		}
	}
}

func listPorts(w io.Writer) {
	fmt.Fprintln(w, "MIDI inputs:")
	fmt.Fprintln(w, midi.GetInPorts().String())
	fmt.Fprintln(w, "MIDI outputs:")
	fmt.Fprintln(w, midi.GetOutPorts().String())
	ports, err := serialmidi.Ports()
	if err != nil {
		fmt.Fprintln(w, "serial:", err)
		return
	}
	fmt.Fprintln(w, "serial ports:")
	for _, port := range ports {
		fmt.Fprintf(w, "  %s\n", port)
	}
}
