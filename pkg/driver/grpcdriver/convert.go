package grpcdriver

import "github.com/cuemby/directord/pkg/driver"

func toWire(f *driver.Frame) *wireFrame {
	if f == nil {
		return nil
	}
	return &wireFrame{
		MessageID:    f.MessageID,
		Channel:      string(f.Channel),
		ControlFlags: f.ControlFlags,
		Command:      f.Command,
		Data:         f.Data,
		Info:         f.Info,
		Stderr:       f.Stderr,
		Stdout:       f.Stdout,
		Identity:     f.Identity,
		JobSHA:       f.JobSHA,
	}
}

func fromWire(w *wireFrame) *driver.Frame {
	if w == nil {
		return nil
	}
	return &driver.Frame{
		MessageID:    w.MessageID,
		Channel:      driver.Channel(w.Channel),
		ControlFlags: w.ControlFlags,
		Command:      w.Command,
		Data:         w.Data,
		Info:         w.Info,
		Stderr:       w.Stderr,
		Stdout:       w.Stdout,
		Identity:     w.Identity,
		JobSHA:       w.JobSHA,
	}
}
