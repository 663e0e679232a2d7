package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/pion/logging"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	_ "github.com/pion/mediadevices/pkg/driver/screen"
	"github.com/pion/mediasession"
	"github.com/pion/mediasession/pkg/devicewatch"
	"github.com/pion/mediasession/pkg/permission"
	"github.com/pion/mediasession/pkg/pionmedia"
	"github.com/pion/mediasession/pkg/recorder"
	"github.com/pion/mediasession/pkg/sink"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// app holds a session and the backends it runs on.
type app struct {
	session *mediasession.Session
	sink    *sink.FrameSink
	watcher *devicewatch.Watcher
	reg     *prometheus.Registry
	log     logging.LeveledLogger

	recorders chan *recorder.Recorder
}

func codecSelector() (*mediadevices.CodecSelector, string, string, error) {
	vp8Params, err := vpx.NewVP8Params()
	if err != nil {
		return nil, "", "", err
	}
	vp8Params.BitRate = opts.Media.VideoBitRate

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, "", "", err
	}
	opusParams.BitRate = opts.Media.AudioBitRate

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vp8Params),
		mediadevices.WithAudioEncoders(&opusParams),
	)
	return selector, vp8Params.RTPCodec().MimeType, opusParams.RTPCodec().MimeType, nil
}

// newApp builds a session recording into outDir. An empty outDir disables
// recording.
func newApp(outDir string) (*app, error) {
	lf := loggerFactory()
	a := &app{
		sink:      sink.New(sink.WithLoggerFactory(lf)),
		watcher:   devicewatch.New(devicewatch.WithLoggerFactory(lf)),
		reg:       prometheus.NewRegistry(),
		log:       lf.NewLogger("main"),
		recorders: make(chan *recorder.Recorder, 8),
	}
	a.reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.reg.MustRegister(collectors.NewGoCollector())

	cfg := pionmedia.Config{
		Width:     opts.Media.Width,
		Height:    opts.Media.Height,
		FrameRate: opts.Media.FrameRate,
	}
	platform := mediasession.Platform{
		Devices:       &pionmedia.Lister{Outputs: pionmedia.MalgoOutputs{}},
		DeviceChanges: a.watcher,
		Permissions:   permission.New(permission.WithLoggerFactory(lf)),
	}

	if outDir != "" {
		selector, videoMime, audioMime, err := codecSelector()
		if err != nil {
			return nil, err
		}
		cfg.Codec = selector
		factory := pionmedia.NewRecorderFactory(pionmedia.RecordingConfig{
			Dir:        outDir,
			VideoCodec: videoMime,
			AudioCodec: audioMime,
			Options:    []recorder.Option{recorder.WithLoggerFactory(lf)},
		})
		platform.Recorders = func(s mediasession.Stream) (mediasession.Recorder, error) {
			r, err := factory(s)
			if rec, ok := r.(*recorder.Recorder); ok {
				select {
				case a.recorders <- rec:
				default:
				}
			}
			return r, err
		}
	}
	platform.Media = pionmedia.NewProvider(cfg)

	session, err := mediasession.New(platform, a.sink,
		mediasession.WithLoggerFactory(lf),
		mediasession.WithRegisterer(a.reg),
		mediasession.WithAutoRevoke(true),
	)
	if err != nil {
		return nil, err
	}
	a.session = session
	return a, nil
}

func (a *app) Close() error {
	return errors.Join(a.session.Close(), a.sink.Close(), a.watcher.Close())
}

// runMetrics serves the registry on addr until ctx is done.
func (a *app) runMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.InstrumentMetricHandler(
		a.reg, promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}),
	))
	hs := http.Server{
		Addr:        addr,
		BaseContext: func(net.Listener) context.Context { return ctx },
		Handler:     mux,
	}
	a.log.Infof("Exposing prometheus metrics on %s", addr)
	go func() {
		<-ctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = hs.Shutdown(ctx)
	}()
	if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
