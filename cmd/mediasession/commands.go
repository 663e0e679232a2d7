package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pion/mediasession"
	"golang.org/x/sync/errgroup"
)

var deviceKinds = []mediasession.DeviceKind{
	mediasession.AudioInput,
	mediasession.AudioOutput,
	mediasession.VideoInput,
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// run starts the session and runs fn next to the metrics listener.
func run(outDir string, fn func(ctx context.Context, a *app) error) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(outDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.log.Warnf("Unable to close session: %v", err)
		}
	}()
	if err := a.session.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if opts.MetricsAddr != "" {
		g.Go(func() error { return a.runMetrics(gctx, opts.MetricsAddr) })
	}
	g.Go(func() error {
		defer cancel()
		return fn(gctx, a)
	})
	return g.Wait()
}

func printDevices(s *mediasession.Session) {
	state := s.State()
	fmt.Printf("camera: %s, microphone: %s\n",
		state.Permissions[mediasession.CapabilityCamera],
		state.Permissions[mediasession.CapabilityMicrophone])
	for _, kind := range deviceKinds {
		fmt.Printf("%s:\n", kind.DisplayName())
		for _, o := range s.DeviceOptions(kind) {
			fmt.Printf("  %-40s %s\n", o.ID, o.Name)
		}
	}
}

type devicesCommand struct{}

func (c *devicesCommand) Execute(args []string) error {
	return run("", func(ctx context.Context, a *app) error {
		printDevices(a.session)
		return nil
	})
}

type watchCommand struct{}

func (c *watchCommand) Execute(args []string) error {
	return run("", func(ctx context.Context, a *app) error {
		printDevices(a.session)
		updates := make(chan struct{}, 1)
		cancel := a.session.Registry().OnUpdate(func([]mediasession.Device) {
			select {
			case updates <- struct{}{}:
			default:
			}
		})
		defer cancel()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-updates:
				fmt.Println(strings.Repeat("-", 60))
				printDevices(a.session)
			}
		}
	})
}

type recordCommand struct {
	Source     string        `long:"source" description:"What to record" choice:"camera" choice:"desktop" default:"camera"`
	Microphone string        `long:"microphone" description:"Microphone device id (default device if empty)"`
	Camera     string        `long:"camera" description:"Camera device id (default device if empty)"`
	Speaker    string        `long:"speaker" description:"Audio output device id"`
	Duration   time.Duration `long:"duration" description:"Stop recording after this long" default:"10s"`
	OutDir     string        `long:"out" description:"Directory recordings are written to" default:"recordings"`
}

func (c *recordCommand) Execute(args []string) error {
	return run(c.OutDir, func(ctx context.Context, a *app) error {
		s := a.session
		s.SelectMicrophone(c.Microphone)
		s.SelectCamera(c.Camera)
		if c.Speaker != "" {
			if err := s.SelectSpeaker(ctx, c.Speaker); err != nil {
				return err
			}
		}

		var err error
		if c.Source == "desktop" {
			_, err = s.AcquireDesktop(ctx)
		} else {
			_, err = s.AcquireCamera(ctx)
		}
		var playbackErr *mediasession.PlaybackError
		switch {
		case errors.As(err, &playbackErr):
			a.log.Warnf("%v", err)
		case mediasession.IsUnavailable(err):
			return fmt.Errorf("the requested %s is not available: %w", c.Source, err)
		case err != nil:
			return err
		}

		if err := s.ToggleRecording(ctx); err != nil {
			return err
		}
		var files []string
		select {
		case rec := <-a.recorders:
			files = rec.Files()
		default:
		}
		a.log.Infof("Recording %s for %s", c.Source, c.Duration)

		timer := time.NewTimer(c.Duration)
		defer timer.Stop()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case <-timer.C:
				break loop
			case <-ticker.C:
				if s.State().Recording == mediasession.RecordingInactive {
					a.log.Warnf("Stream ended before the recording finished")
					break loop
				}
				a.log.Debugf("%d frames rendered", a.sink.Frames())
			}
		}

		err = errors.Join(s.StopRecording(), s.Revoke())
		for _, f := range files {
			fmt.Println(f)
		}
		return err
	})
}
