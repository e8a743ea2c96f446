package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/profile"
	log "github.com/sirupsen/logrus"
	"github.com/vearutop/uhdrbake"
)

const (
	defaultBakeOut   = "ultrahdr_bake_out.jpg"
	defaultMotionOut = "motionphoto.jpg"
)

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}

	var err error
	switch args[0] {
	case "bake":
		err = runBake(args[1:])
	case "motion":
		err = runMotion(args[1:])
	case "detect":
		err = runDetect(args[1:])
	case "split":
		err = runSplit(args[1:])
	case "help", "-h", "-help", "--help":
		usage()
		return 0
	default:
		err = runBake(args)
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 2
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, "error:", err)
		return 2
	default:
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: uhdrbake <command> [args]")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  bake   [HDR.jpg [SDR.jpg]] [--hdr F --sdr F] [-o out.jpg] [--base-q 95] [--gm-q 95] [--scale 1] [-m] [--target-peak NITS]")
	fmt.Fprintln(os.Stderr, "  motion [PHOTO VIDEO] [--photo F] [--video F] [-o out.jpg] [--timestamp-us 0]")
	fmt.Fprintln(os.Stderr, "  detect -in input.jpg")
	fmt.Fprintln(os.Stderr, "  split  -in input.jpg -primary-out primary.jpg -gainmap-out gainmap.jpg [-meta-out meta.json]")
	fmt.Fprintln(os.Stderr, "Bare file arguments mean bake. Global flags: --verbose, --profile cpu|mem")
}

// globals are accepted by every subcommand.
type globals struct {
	verbose bool
	profile string
}

func (g *globals) register(fs *flag.FlagSet) {
	fs.BoolVar(&g.verbose, "verbose", false, "debug logging")
	fs.StringVar(&g.profile, "profile", "", "write a cpu or mem profile to the current directory")
}

// start configures logging and profiling, the returned func stops profiling.
func (g *globals) start() (log.FieldLogger, func(), error) {
	logger := log.New()
	logger.SetOutput(os.Stderr)
	if g.verbose {
		logger.SetLevel(log.DebugLevel)
	}

	var mode func(*profile.Profile)
	switch g.profile {
	case "":
		return logger, func() {}, nil
	case "cpu":
		mode = profile.CPUProfile
	case "mem":
		mode = profile.MemProfileHeap
	default:
		return nil, nil, fmt.Errorf("%w: unknown --profile %q, want cpu or mem", errUsage, g.profile)
	}
	p := profile.Start(mode, profile.ProfilePath("."), profile.NoShutdownHook, profile.Quiet)
	return logger, p.Stop, nil
}

// parseInterspersed allows flags after positional arguments.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, fmt.Errorf("%w: %w", errUsage, err)
		}
		rest := fs.Args()
		if len(rest) == 0 {
			return positional, nil
		}
		// Parse consumes the "--" terminator.
		if n := len(args) - len(rest); n > 0 && args[n-1] == "--" {
			return append(positional, rest...), nil
		}
		args = rest
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func runBake(args []string) error {
	fs := flag.NewFlagSet("bake", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		g                 globals
		hdr, sdr, out     string
		baseQ, gmQ, scale int
		multiChannel      bool
		targetPeak        float64
	)
	g.register(fs)
	fs.StringVar(&hdr, "hdr", "", "UltraHDR input providing the HDR intent")
	fs.StringVar(&sdr, "sdr", "", "SDR JPEG used as the base image")
	fs.StringVar(&sdr, "s", "", "alias for --sdr")
	fs.StringVar(&out, "out", defaultBakeOut, "output UltraHDR JPEG")
	fs.StringVar(&out, "o", defaultBakeOut, "alias for --out")
	fs.IntVar(&baseQ, "base-q", 95, "base image quality")
	fs.IntVar(&gmQ, "gm-q", 95, "gain map quality")
	fs.IntVar(&gmQ, "gainmap-q", 95, "alias for --gm-q")
	fs.IntVar(&scale, "scale", 1, "gain map downscale factor")
	fs.BoolVar(&multiChannel, "multichannel", false, "per channel gain map")
	fs.BoolVar(&multiChannel, "m", false, "alias for --multichannel")
	fs.BoolVar(&multiChannel, "mc", false, "alias for --multichannel")
	fs.Float64Var(&targetPeak, "target-peak", 0, "target display peak in nits, default from the HDR input")

	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	if targetPeak < 0 || (targetPeak == 0 && isFlagSet(fs, "target-peak")) {
		return fmt.Errorf("--target-peak must be > 0, got %g", targetPeak)
	}
	opts := uhdrbake.DefaultBakeOptions()
	opts.BaseQuality = baseQ
	opts.GainMapQuality = gmQ
	opts.GainMapScale = scale
	opts.MultiChannel = multiChannel
	opts.TargetPeakNits = float32(targetPeak)
	if err := opts.Validate(); err != nil {
		return err
	}

	logger, stop, err := g.start()
	if err != nil {
		return err
	}
	defer stop()
	opts.Logger = logger

	codec := uhdrbake.NewNativeCodec(logger)
	pair, err := uhdrbake.ResolveBakeInputs(codec, uhdrbake.ResolveRequest{
		Positional: positional,
		HDR:        hdr,
		SDR:        sdr,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	_, err = uhdrbake.BakeFile(codec, pair, out, opts)
	return err
}

func runMotion(args []string) error {
	fs := flag.NewFlagSet("motion", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		g                 globals
		photo, video, out string
		timestampUs       uint64
	)
	g.register(fs)
	fs.StringVar(&photo, "photo", "", "still JPEG, plain or UltraHDR")
	fs.StringVar(&photo, "p", "", "alias for --photo")
	fs.StringVar(&video, "video", "", "MP4 clip")
	fs.StringVar(&video, "v", "", "alias for --video")
	fs.StringVar(&out, "out", defaultMotionOut, "output Motion Photo JPEG")
	fs.StringVar(&out, "o", defaultMotionOut, "alias for --out")
	fs.Uint64Var(&timestampUs, "timestamp-us", 0, "presentation timestamp of the still frame in microseconds")

	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	logger, stop, err := g.start()
	if err != nil {
		return err
	}
	defer stop()

	pair, err := uhdrbake.ResolveMotionInputs(uhdrbake.MotionResolveRequest{
		Positional: positional,
		Photo:      photo,
		Video:      video,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	_, err = uhdrbake.AssembleMotionPhotoFile(pair, out, uhdrbake.MotionOptions{
		PresentationTimestampUs: timestampUs,
		Logger:                  logger,
	})
	return err
}

func runDetect(args []string) error {
	fs := flag.NewFlagSet("detect", flag.ContinueOnError)
	inPath := fs.String("in", "", "input JPEG")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if *inPath == "" {
		return fmt.Errorf("%w: missing -in", errUsage)
	}
	f, err := os.Open(filepath.Clean(*inPath))
	if err != nil {
		return err
	}
	defer f.Close()
	ok, err := uhdrbake.IsUltraHDR(f)
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintln(os.Stdout, "ultrahdr")
		return nil
	}
	fmt.Fprintln(os.Stdout, "not ultrahdr")
	return nil
}

func runSplit(args []string) error {
	fs := flag.NewFlagSet("split", flag.ContinueOnError)
	inPath := fs.String("in", "", "input UltraHDR JPEG")
	primaryOut := fs.String("primary-out", "", "primary output JPEG")
	gainmapOut := fs.String("gainmap-out", "", "gainmap output JPEG")
	metaOut := fs.String("meta-out", "", "gain map metadata json output")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if *inPath == "" || *primaryOut == "" || *gainmapOut == "" {
		return fmt.Errorf("%w: missing required arguments", errUsage)
	}
	data, err := os.ReadFile(filepath.Clean(*inPath))
	if err != nil {
		return err
	}
	split, err := uhdrbake.Split(data)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Clean(*primaryOut), split.PrimaryJPEG, 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Clean(*gainmapOut), split.GainmapJPEG, 0o644); err != nil {
		return err
	}
	if *metaOut != "" {
		payload, err := json.MarshalIndent(split.Meta, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Clean(*metaOut), payload, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
