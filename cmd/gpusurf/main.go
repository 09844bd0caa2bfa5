// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command gpusurf clears an off-screen surface on one thread, reads it
// back through a surface texture on another and saves the result as PNG.
package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpusurf"
	"github.com/gogpu/gpusurf/backend"
	_ "github.com/gogpu/gpusurf/backend/native"
	"github.com/gogpu/gpusurf/chain"
)

// The producer context is made current on the main thread.
func init() { runtime.LockOSThread() }

func main() {
	var (
		backendName = flag.String("backend", "", "backend name (default: best available)")
		configPath  = flag.String("config", "", "TOML config file (default: user config dir)")
		adapter     = flag.String("adapter", "", "adapter preference: default, high-performance, low-power, software")
		size        = flag.String("size", "256x256", "surface size WxH")
		color       = flag.String("color", "#3366cc", "clear color #rrggbb[aa]")
		output      = flag.String("output", "gpusurf.png", "output file")
		list        = flag.Bool("list", false, "list backends and adapters, then exit")
		verbose     = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	if *verbose {
		gpusurf.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	opts, err := options(*configPath, *backendName, *adapter)
	if err != nil {
		log.Fatal(err)
	}
	sz, err := parseSize(*size)
	if err != nil {
		log.Fatalf("Invalid -size: %v", err)
	}
	bg, err := parseColor(*color)
	if err != nil {
		log.Fatalf("Invalid -color: %v", err)
	}

	defer backend.Shutdown()
	conn, err := gpusurf.Connect(opts...)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	if *list {
		log.Printf("Backends: %s", strings.Join(backend.Available(), ", "))
		for _, a := range conn.Adapters() {
			log.Printf("  [%d] %s", a.Index, a)
		}
		return
	}

	a, err := conn.DefaultAdapter()
	if err != nil {
		log.Fatalf("No adapter: %v", err)
	}
	dev, err := gpusurf.NewDevice(conn, a)
	if err != nil {
		log.Fatalf("Failed to open device: %v", err)
	}
	defer dev.Destroy()

	img, err := render(dev, sz, bg)
	if err != nil {
		log.Fatalf("Render failed: %v", err)
	}
	if err := savePNG(*output, img); err != nil {
		log.Fatalf("Failed to save: %v", err)
	}

	log.Printf("Frame from %s on %s saved to %s (%dx%d)\n", conn.Backend(), a, *output, sz.X, sz.Y)
}

// options layers the config file under the command line flags.
func options(configPath, backendName, adapter string) ([]gpusurf.Option, error) {
	var opts []gpusurf.Option

	path := configPath
	if path == "" {
		if p, err := gpusurf.DefaultConfigPath(); err == nil {
			path = p
		}
	}
	if path != "" {
		cfg, err := gpusurf.LoadConfig(path)
		switch {
		case err == nil:
			opts = append(opts, gpusurf.WithConfig(cfg))
		case configPath == "" && errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}

	if backendName != "" {
		opts = append(opts, gpusurf.WithBackend(backendName))
	}
	if adapter != "" {
		pref, err := gpusurf.ParseAdapterPreference(adapter)
		if err != nil {
			return nil, err
		}
		opts = append(opts, gpusurf.WithAdapterPreference(pref))
	}
	return opts, nil
}

// render clears a chain back buffer on this thread, swaps it to the front
// and reads the front back through a consumer context on another thread.
func render(dev *gpusurf.Device, size image.Point, bg gputypes.Color) (img *image.RGBA, err error) {
	producer, err := dev.CreateContext(gpusurf.DefaultContextAttributes())
	if err != nil {
		return nil, err
	}
	defer producer.Destroy()
	if err := producer.MakeCurrent(); err != nil {
		return nil, err
	}
	defer producer.MakeNotCurrent()

	ch, err := chain.New(dev, producer, chain.Config{Size: size})
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, ch.Destroy()) }()

	if _, err := ch.Attach(); err != nil {
		return nil, err
	}
	if err := ch.Clear(bg); err != nil {
		return nil, err
	}
	if _, err := ch.Swap(ch.Back()); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		img, err = consume(dev, ch)
	}()
	<-done
	return img, err
}

func consume(dev *gpusurf.Device, ch *chain.Chain) (*image.RGBA, error) {
	consumer, err := dev.CreateContext(gpusurf.DefaultContextAttributes())
	if err != nil {
		return nil, err
	}
	defer consumer.Destroy()
	if err := consumer.MakeCurrent(); err != nil {
		return nil, err
	}
	defer consumer.MakeNotCurrent()

	st, err := ch.AcquireFront(consumer)
	if err != nil {
		return nil, err
	}
	defer ch.ReleaseFront(consumer, st)
	return st.ReadPixels()
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func parseSize(s string) (image.Point, error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return image.Point{}, fmt.Errorf("%q is not WxH", s)
	}
	x, err := strconv.Atoi(w)
	if err != nil {
		return image.Point{}, err
	}
	y, err := strconv.Atoi(h)
	if err != nil {
		return image.Point{}, err
	}
	if x < 1 || y < 1 {
		return image.Point{}, fmt.Errorf("%dx%d is empty", x, y)
	}
	return image.Pt(x, y), nil
}

func parseColor(s string) (gputypes.Color, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return gputypes.Color{}, fmt.Errorf("%q is not #rrggbb or #rrggbbaa", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return gputypes.Color{}, err
	}
	channel := func(shift uint) float64 { return float64(v>>shift&0xff) / 255 }
	return gputypes.Color{R: channel(24), G: channel(16), B: channel(8), A: channel(0)}, nil
}
