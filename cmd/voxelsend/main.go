// Command voxelsend pushes frames to a cube over a serial line.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/funtimes-voxelcube/internal/pattern"
	"github.com/coreman2200/funtimes-voxelcube/internal/uart"
	"github.com/coreman2200/funtimes-voxelcube/internal/voxel"
)

func main() {
	var (
		list     = flag.Bool("list", false, "list serial ports and exit")
		path     = flag.String("port", "/dev/ttyUSB0", "serial device")
		baud     = flag.Int("baud", uart.DefaultBaud, "baud rate")
		file     = flag.String("file", "", "hex frame file, '-' for stdin")
		name     = flag.String("pattern", "", "stream a built-in pattern instead of a file")
		seed     = flag.Uint("seed", 1, "pattern seed")
		interval = flag.Duration("interval", 100*time.Millisecond, "delay between frames")
		repeat   = flag.Int("repeat", 1, "times to send the sequence; 0 loops forever")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if *list {
		ports, err := uart.List()
		if err != nil {
			log.Fatal().Err(err).Msg("list serial ports")
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	frames, err := loadFrames(*file, *name, uint32(*seed))
	if err != nil {
		log.Fatal().Err(err).Msg("load frames")
	}

	p, err := uart.Open(*path, uart.PortOptions{BaudRate: *baud})
	if err != nil {
		log.Fatal().Err(err).Str("port", *path).Msg("open serial port")
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sent, err := send(ctx, p, frames, *interval, *repeat)
	if err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Int("sent", sent).Msg("send")
	}
	log.Info().Int("frames", sent).Str("port", *path).Msg("done")
}

func loadFrames(file, name string, seed uint32) ([]voxel.Grid, error) {
	switch {
	case name != "":
		k, err := pattern.Parse(name)
		if err != nil {
			return nil, err
		}
		return render(pattern.NewRunner(pattern.Plan{Kind: k, Seed: seed}), 64), nil
	case file == "-":
		return readHexFrames(os.Stdin)
	case file != "":
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return readHexFrames(f)
	}
	return nil, fmt.Errorf("need -file or -pattern")
}

// render runs r to completion, or for limit steps if it is endless.
func render(r *pattern.Runner, limit int) []voxel.Grid {
	n := r.Len()
	if n == 0 {
		n = limit
	}
	out := make([]voxel.Grid, 0, n)
	for len(out) < n {
		var g voxel.Grid
		if !r.Step(&g) {
			break
		}
		out = append(out, g)
	}
	return out
}

// send writes each frame, pausing interval between them, repeat times over.
func send(ctx context.Context, w io.Writer, frames []voxel.Grid, interval time.Duration, repeat int) (int, error) {
	sent := 0
	for pass := 0; repeat == 0 || pass < repeat; pass++ {
		for i := range frames {
			if _, err := w.Write(encodeFrame(&frames[i])); err != nil {
				return sent, err
			}
			sent++
			select {
			case <-ctx.Done():
				return sent, ctx.Err()
			case <-time.After(interval):
			}
		}
	}
	return sent, nil
}
