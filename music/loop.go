package music

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	. "github.com/JeanRibes/step-sequencer/shared"

	charmlog "github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Apply runs one edit command coming from the UI bus.
func (e *Engine) Apply(msg Message) error {
	switch msg.Type {
	case TransportStart:
		e.Start()
	case TransportStop:
		e.Stop()
	case TransportContinue:
		e.Continue()
	case SelectPattern:
		return e.SelectPattern(msg.Number)
	case QueuePattern:
		return e.QueuePattern(msg.Number)
	case AddPattern:
		_, err := e.AddPattern()
		return err
	case ToggleNote:
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.toggle(e.pattern, msg.Number, msg.Number2, int(e.params.Velocity))
	case ToggleSelection:
		return e.ToggleSelection()
	case MoveSelection:
		e.MoveSelection(msg.Number, msg.Number2)
	case SetVelocity:
		e.SetVelocity(msg.Number)
	case SetChannel:
		e.SetMidiChannel(msg.Number)
	case SetPulsesPerStep:
		e.SetPulsesPerStep(msg.Number)
	case SetStepCount:
		_, err := e.SetStepCount(e.Cursor().Pattern, msg.Number)
		return err
	case CommitStepCount:
		_, err := e.CommitStepCount(e.Cursor().Pattern)
		return err
	case Panic:
		e.AllNotesOff()
	case LoadDefaults:
		e.LoadDefaults()
	case StateImport:
		return e.LoadFromFile(msg.String)
	case StateExport:
		return e.SaveToFile(withExt(msg.String, ".yaml"))
	case PatternImport:
		file, err := os.Open(msg.String)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = e.ImportSMF(file, msg.Boolean)
		return err
	case PatternExport:
		return e.exportSMFFile(withExt(msg.String, ".mid"), msg.Number)
	default:
		return fmt.Errorf("unknown message type %d: %w", msg.Type, ErrInvalidState)
	}
	return nil
}

// exportSMFFile writes one pattern, or all of them when pattern is negative.
func (e *Engine) exportSMFFile(path string, pattern int) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if pattern >= 0 {
		err = e.ExportSMF(file, pattern)
	} else {
		err = e.ExportSMF(file)
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	return err
}

func withExt(path, ext string) string {
	if filepath.Ext(path) == "" {
		return path + ext
	}
	return path
}

/*
Run binds the engine to a pair of ports until ctx ends. Clock and transport
messages from in drive playback, note-ons from in toggle the note at the
selection. Edits arrive on SinkLoop; step and pattern notifications leave on
SinkUI. in may be nil when the clock comes from elsewhere (serial).
*/
func Run(ctx context.Context, cancel func(), in drivers.In, out drivers.Out, engine *Engine, SinkUI, SinkLoop chan Message) {
	logger := charmlog.FromContext(ctx).WithPrefix("loop")
	logger.Info("start")
	logger.Info("connecting to", "output", out.String())

	send, err := midi.SendTo(out)
	if err != nil {
		logger.Error(err)
		SinkUI <- Message{Type: Error, String: "cannot open MIDI output " + out.String()}
		cancel()
		return
	}
	if err := send(midi.Reset()); err != nil {
		logger.Error(err)
	}

	schedCtx, cancelSched := context.WithCancel(context.WithValue(context.Background(), charmlog.ContextKey, logger))
	defer cancelSched()
	sink, drained := Scheduler(schedCtx, send)
	engine.SetSink(sink)
	engine.SetNotifier(func(msg Message) {
		select {
		case SinkUI <- msg:
		default:
			// the UI repaints from a snapshot, a dropped notification is harmless
		}
	})

	stop := func() {}
	if in != nil {
		logger.Info("connecting to", "input", in.String())
		stop, err = midi.ListenTo(in, func(msg midi.Message, absms int32) {
			var ch, key, vel uint8
			switch {
			case msg.GetNoteStart(&ch, &key, &vel):
				if err := engine.ToggleEventAtSelection(int(key)); err != nil {
					logger.Warn("toggle from keyboard", "key", midi.Note(key), "err", err)
				}
			default:
				engine.HandleMessage(msg)
			}
		}, midi.UseTimeCode())
		if err != nil {
			logger.Error(err)
			SinkUI <- Message{Type: Error, String: "cannot listen to MIDI input " + in.String()}
			engine.SetSink(nil)
			engine.SetNotifier(nil)
			cancelSched()
			drained()
			cancel()
			return
		}
	} else {
		logger.Warn("no input port, waiting for an external clock")
	}

	snap := engine.Snapshot()
	SinkUI <- Message{Type: PatternChange, Number: snap.Cursor.Pattern, Number2: snap.PatternCount}

loopchan:
	for {
		select {
		case <-ctx.Done():
			logger.Debug("context Done")
			break loopchan
		case msg := <-SinkLoop:
			logger.Debug("apply", "type", msg.Type, "number", msg.Number, "number2", msg.Number2)
			if err := engine.Apply(msg); err != nil {
				logger.Error("apply", "type", msg.Type, "err", err)
				SinkUI <- Message{Type: Error, String: err.Error()}
			}
		}
	}
	logger.Info("stop")
	stop()
	engine.Stop()
	engine.SetSink(nil)
	engine.SetNotifier(nil)
	// the ports get closed once we return
	cancelSched()
	drained()
}
