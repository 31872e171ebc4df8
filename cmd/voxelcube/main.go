package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/funtimes-voxelcube/internal/config"
	"github.com/coreman2200/funtimes-voxelcube/internal/cube"
	diag "github.com/coreman2200/funtimes-voxelcube/internal/diagnostics"
	"github.com/coreman2200/funtimes-voxelcube/internal/port"
	"github.com/coreman2200/funtimes-voxelcube/internal/uart"
	"github.com/coreman2200/funtimes-voxelcube/internal/voxel"
	"github.com/coreman2200/funtimes-voxelcube/internal/ws"
)

func main() {
	// ---- Flags (a flag given on the command line beats config.yaml) ----
	var rate physic.Frequency
	var (
		configPath = flag.String("config", "config.yaml", "path to config.yaml")
		driver     = flag.String("driver", "sim", "driver: gpio | sim")
		serialPath = flag.String("serial", "", "serial device, e.g. /dev/ttyUSB0")
		baud       = flag.Int("baud", uart.DefaultBaud, "serial baud rate")
		addr       = flag.String("addr", ":8080", "HTTP listen address; empty disables")
		level      = flag.String("log-level", "info", "log level")
		console    = flag.Bool("console", false, "draw a terminal preview in sim mode")
		fps        = flag.Int("fps", 30, "preview frames per second")
	)
	flag.Var(&rate, "layer-rate", "layer firing rate, e.g. 1kHz")
	flag.Parse()

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	// ---- Load config.yaml (optional) ----
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("config load failed; proceeding with defaults")
		cfg = config.Default()
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "driver":
			cfg.Driver = *driver
		case "serial":
			cfg.Serial.Path = *serialPath
		case "baud":
			cfg.Serial.BaudRate = *baud
		case "addr":
			cfg.HTTP = *addr
		case "log-level":
			cfg.LogLevel = *level
		case "console":
			cfg.Console = *console
		case "layer-rate":
			cfg.Refresh.LayerRate = rate.String()
		}
	})

	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level; using info")
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	layerRate, _ := cfg.LayerRate()

	// ---- Output ports ----
	ports, err := openPorts(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Driver).Msg("open output ports")
	}

	// ---- Serial link ----
	var link uart.Porter
	if cfg.Serial.Path != "" {
		p, err := uart.Open(cfg.Serial.Path, cfg.Serial.PortOptions)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Serial.Path).Msg("open serial port")
		}
		link = p
		log.Info().Str("path", cfg.Serial.Path).Stringer("mode", cfg.Serial.PortOptions).Msg("serial port open")
	}

	// ---- State ----
	state := ws.NewState(nil, *fps)
	state.ConfigPath = *configPath
	state.Config = cfg
	state.CurrentDriver = cfg.Driver

	var preview chan voxel.Grid
	if cfg.Console && cfg.Driver == "sim" {
		preview = make(chan voxel.Grid, 1)
	}

	opts := cube.Options{
		RXCapacity: cfg.Ring.RX,
		TXCapacity: cfg.Ring.TX,
		Period:     layerRate.Period(),
		Settle:     cfg.Settle(),
		Wiring:     cfg.Wiring,
		Protocol:   cfg.Protocol,
		Echo:       cfg.Serial.Echo,
		Announce:   cfg.Serial.Announce,
		IdleStep:   cfg.IdleStep(),
		Log:        log.Logger,
		Diag:       state.PushDiag,
		Frame: func(front *voxel.Grid, id uint64) {
			state.OnFrame(front, id)
			if preview != nil {
				select {
				case preview <- *front:
				default:
				}
			}
		},
	}
	if cfg.Idle.Enabled {
		opts.Idle = &cfg.Idle.Program
	}
	ctrl, err := cube.New(ports, link, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("build controller")
	}
	state.SetCube(ctrl)

	if hz := cfg.RefreshHz(); hz < config.MinRefreshHz {
		log.Warn().Float64("refresh_hz", hz).Msg("cube refresh is slow enough to flicker")
		state.PushDiag(diag.RefreshSlow(hz))
	}

	// ---- Run controller, preview & server ----
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	log.Info().
		Str("driver", cfg.Driver).
		Str("layer_rate", cfg.Refresh.LayerRate).
		Str("refresh_hz", strconv.FormatFloat(cfg.RefreshHz(), 'f', 1, 64)).
		Msg("cube starting")
	g.Go(func() error { return ctrl.Run(ctx) })
	g.Go(func() error { return state.RunBroadcast(ctx) })

	if preview != nil {
		c := port.NewConsole()
		g.Go(func() error {
			defer c.Halt()
			for {
				select {
				case <-ctx.Done():
					return nil
				case f := <-preview:
					if err := c.Show(&f); err != nil {
						return err
					}
				}
			}
		})
	}

	if cfg.HTTP != "" {
		// ---- HTTP routes ----
		mux := http.NewServeMux()
		mux.HandleFunc("/ws", state.HandleFramesWS)
		mux.HandleFunc("/diag", state.HandleDiagWS)
		mux.HandleFunc("/control", state.HandleControlWS)
		mux.HandleFunc("/health", state.HandleHealth)

		srv := &http.Server{
			Addr:         cfg.HTTP,
			Handler:      withCORS(mux),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		g.Go(func() error {
			log.Info().Str("addr", cfg.HTTP).Msg("HTTP server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	err = g.Wait()
	// The controller has blanked the buses; release the pins.
	if herr := ports.Halt(); herr != nil {
		log.Warn().Err(herr).Msg("release output ports")
	}
	if err != nil {
		log.Error().Err(err).Msg("stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("shut down")
}

func openPorts(cfg *config.Config) (port.Ports, error) {
	if cfg.Driver == "sim" {
		return port.Ports{X: port.Discard{}, Y: port.Discard{}, Z: port.Discard{}}, nil
	}
	x, err := port.OpenBank(cfg.Pins.X)
	if err != nil {
		return port.Ports{}, err
	}
	y, err := port.OpenBank(cfg.Pins.Y)
	if err != nil {
		x.Halt()
		return port.Ports{}, err
	}
	z, err := port.OpenBank(cfg.Pins.Z)
	if err != nil {
		x.Halt()
		y.Halt()
		return port.Ports{}, err
	}
	return port.Ports{X: x, Y: y, Z: z}, nil
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}
		h.ServeHTTP(w, r)
	})
}
