package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mrjoshuak/go-fbutil/checkpoint"
	"github.com/mrjoshuak/go-fbutil/display"
	"github.com/mrjoshuak/go-fbutil/fb"
)

// argParser walks a command's arguments. Options and positional arguments
// may be interleaved.
type argParser struct {
	args       []string
	i          int
	positional []string
	err        error
}

// next returns the next option, or "" when the arguments are exhausted.
// Positional arguments are collected along the way.
func (p *argParser) next() string {
	for p.err == nil && p.i < len(p.args) {
		arg := p.args[p.i]
		p.i++
		if strings.HasPrefix(arg, "-") && arg != "-" {
			return arg
		}
		p.positional = append(p.positional, arg)
	}
	return ""
}

func (p *argParser) value(opt string) string {
	if p.i >= len(p.args) {
		p.fail(usageErrorf("missing value for %s", opt))
		return ""
	}
	v := p.args[p.i]
	p.i++
	return v
}

func (p *argParser) int(opt string) int {
	s := p.value(opt)
	if p.err != nil {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		p.fail(usageErrorf("%s: invalid integer %q", opt, s))
	}
	return v
}

func (p *argParser) float32(opt string) *float32 {
	s := p.value(opt)
	if p.err != nil {
		return nil
	}
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		p.fail(usageErrorf("%s: invalid number %q", opt, s))
		return nil
	}
	f := float32(v)
	return &f
}

func (p *argParser) unknown(opt string) {
	p.fail(usageErrorf("unknown option %s", opt))
}

func (p *argParser) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

// parseCommon handles options shared by the writing commands. It reports
// whether opt was consumed.
func (e *env) parseCommon(p *argParser, opt string, out *string) bool {
	switch opt {
	case "-o", "--output":
		*out = p.value(opt)
	case "-codec":
		e.flags.Codec = p.value(opt)
	case "-level":
		e.flags.Level = p.int(opt)
	case "-half":
		e.flags.Half = true
	case "-workers":
		e.flags.Workers = p.int(opt)
	default:
		return false
	}
	return true
}

func (e *env) write(path string, s *checkpoint.Snapshot) error {
	opts, err := e.settings.CheckpointOptions()
	if err != nil {
		return err
	}
	if err := checkpoint.WriteFile(path, s, opts); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s: %v %dx%d, %d tiles, %s\n",
		path, s.Format, s.Width, s.Height, len(s.Tiles), opts.Codec)
	return nil
}

func runSynth(e *env, args []string) error {
	p := &argParser{args: args}
	var out string
	width, height := 0, 0
	format := fb.Float4
	part, parts := 0, 1
	for opt := p.next(); opt != ""; opt = p.next() {
		if e.parseCommon(p, opt, &out) {
			continue
		}
		switch opt {
		case "-w", "-width":
			width = p.int(opt)
		case "-h", "-height":
			height = p.int(opt)
		case "-format":
			f, err := fb.ParsePixelFormat(p.value(opt))
			if err != nil {
				p.fail(usageErrorf("%v", err))
			}
			format = f
		case "-part":
			v := p.value(opt)
			if _, err := fmt.Sscanf(v, "%d/%d", &part, &parts); err != nil || parts < 1 || part < 0 || part >= parts {
				p.fail(usageErrorf("-part %q: want i/n with 0 <= i < n", v))
			}
		default:
			p.unknown(opt)
		}
	}
	if p.err != nil {
		return p.err
	}
	if out == "" || width <= 0 || height <= 0 || len(p.positional) != 0 {
		return usageErrorf("synth needs -w, -h and -o")
	}
	if err := e.apply(); err != nil {
		return err
	}

	b, err := fb.NewBuffer(format, width, height)
	if err != nil {
		return err
	}
	defer b.CleanUp()
	synthesize(b)

	tiler := fb.NewTiler(width, height)
	var indices []int
	for i := part; i < tiler.TileCount(); i += parts {
		indices = append(indices, i)
	}
	s, err := checkpoint.Capture(b, tiler.Tiles(indices...))
	if err != nil {
		return err
	}
	return e.write(out, s)
}

// synthesize fills b with a gradient: red along x, green along y, a blue
// diagonal and opaque alpha. Float values run past 1 on the right edge so
// exposure and clamping are visible.
func synthesize(b *fb.Buffer) {
	w, h := b.Width(), b.Height()
	value := func(x, y, c int) float32 {
		switch c {
		case 0:
			return 2 * float32(x) / float32(w)
		case 1:
			return float32(y) / float32(h)
		case 2:
			return float32(x+y) / float32(w+h)
		default:
			return 1
		}
	}

	switch b.Format() {
	case fb.RGB888, fb.RGBA8888:
		bpp := b.BytesPerPixel()
		data := b.Data()
		fb.ParallelFor(h, func(y int) {
			for x := 0; x < w; x++ {
				off := b.PixelOffset(x, y)
				for c := 0; c < bpp; c++ {
					data[off+c] = uint8(min(value(x, y, c), 1) * 255)
				}
			}
		})
	default:
		ch := b.Format().Channels()
		vals := b.Channels()
		fb.ParallelFor(h, func(y int) {
			for x := 0; x < w; x++ {
				for c := 0; c < ch; c++ {
					vals[(y*w+x)*ch+c] = value(x, y, c)
				}
			}
		})
	}
}

func runInfo(e *env, args []string) error {
	p := &argParser{args: args}
	for opt := p.next(); opt != ""; opt = p.next() {
		p.unknown(opt)
	}
	if p.err != nil {
		return p.err
	}
	if len(p.positional) == 0 {
		return usageErrorf("info needs at least one file")
	}

	var failed int
	for _, path := range p.positional {
		info, err := checkpoint.ReadInfoFile(path)
		if err != nil {
			fmt.Fprintf(e.stderr, "%v\n", err)
			failed++
			continue
		}
		s := &checkpoint.Snapshot{Width: info.Width, Height: info.Height, Tiles: info.Tiles}
		tiler := fb.NewTiler(info.Width, info.Height)
		fmt.Fprintf(e.stdout, "%s:\n", path)
		fmt.Fprintf(e.stdout, "  format:   %v (%d bytes/pixel)\n", info.Format, fb.BytesPerPixel(info.Format))
		fmt.Fprintf(e.stdout, "  size:     %dx%d (%d tiles)\n", info.Width, info.Height, tiler.TileCount())
		fmt.Fprintf(e.stdout, "  tiles:    %d\n", len(info.Tiles))
		fmt.Fprintf(e.stdout, "  coverage: %.1f%%\n", 100*s.Coverage())
		fmt.Fprintf(e.stdout, "  codec:    %v (%d -> %d bytes)\n", info.Codec, info.RawLen, info.DataLen)
		if info.Flags&checkpoint.FlagHalf != 0 {
			fmt.Fprintln(e.stdout, "  storage:  half precision")
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files unreadable", failed, len(p.positional))
	}
	return nil
}

func runMerge(e *env, args []string) error {
	p := &argParser{args: args}
	var out string
	for opt := p.next(); opt != ""; opt = p.next() {
		if !e.parseCommon(p, opt, &out) {
			p.unknown(opt)
		}
	}
	if p.err != nil {
		return p.err
	}
	if out == "" || len(p.positional) == 0 {
		return usageErrorf("merge needs -o and at least one input")
	}
	if err := e.apply(); err != nil {
		return err
	}

	snaps, err := checkpoint.ReadFiles(p.positional...)
	if err != nil {
		return err
	}
	b, tiles, err := checkpoint.Merge(snaps...)
	if err != nil {
		return err
	}
	defer b.CleanUp()

	s, err := checkpoint.Capture(b, tiles)
	if err != nil {
		return err
	}
	return e.write(out, s)
}

func runExport(e *env, args []string) error {
	p := &argParser{args: args}
	var out string
	for opt := p.next(); opt != ""; opt = p.next() {
		switch opt {
		case "-o", "--output":
			out = p.value(opt)
		case "-exposure":
			e.flags.Exposure = p.float32(opt)
		case "-gamma":
			e.flags.Gamma = p.float32(opt)
		case "-dither":
			e.flags.Dither = true
		case "-noalpha":
			e.flags.NoAlpha = true
		case "-format":
			e.flags.Format = p.value(opt)
		case "-workers":
			e.flags.Workers = p.int(opt)
		default:
			p.unknown(opt)
		}
	}
	if p.err != nil {
		return p.err
	}
	if len(p.positional) != 1 {
		return usageErrorf("export needs exactly one input")
	}
	in := p.positional[0]

	// An explicit output extension picks the format unless -format was given.
	if out != "" && e.flags.Format == "" {
		if f, err := display.FormatFromPath(out); err == nil {
			e.flags.Format = f.String()
		}
	}
	if err := e.apply(); err != nil {
		return err
	}
	format, err := e.settings.ExportFormat()
	if err != nil {
		return err
	}
	if out == "" {
		out = strings.TrimSuffix(in, filepath.Ext(in)) + "." + format.String()
	}

	s, err := checkpoint.ReadFile(in)
	if err != nil {
		return err
	}
	src, err := s.NewBuffer()
	if err != nil {
		return err
	}
	defer src.CleanUp()

	img := src
	switch src.Format() {
	case fb.Float4:
		q := e.settings.Quantize
		img, err = display.Quantize(src, e.settings.Export.Alpha, e.settings.QuantizeOptions(), q.Exposure, q.Gamma)
		if err != nil {
			return err
		}
		defer img.CleanUp()
	case fb.RGB888, fb.RGBA8888:
	default:
		return fmt.Errorf("cannot export %v checkpoint: %w", src.Format(), fb.ErrFormatMismatch)
	}

	if err := display.SaveAs(out, img, format); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s: %dx%d %v\n", out, img.Width(), img.Height(), format)
	return nil
}

func runTile(e *env, args []string) error {
	return convertLayout(e, "tile", args, false)
}

func runUntile(e *env, args []string) error {
	return convertLayout(e, "untile", args, true)
}

// convertLayout rewrites a checkpoint between raster and tile order.
// Tile order is stored at the aligned size of the raster image.
func convertLayout(e *env, name string, args []string, untile bool) error {
	p := &argParser{args: args}
	var out string
	width, height := 0, 0
	for opt := p.next(); opt != ""; opt = p.next() {
		if e.parseCommon(p, opt, &out) {
			continue
		}
		switch opt {
		case "-w", "-width":
			width = p.int(opt)
		case "-h", "-height":
			height = p.int(opt)
		default:
			p.unknown(opt)
		}
	}
	if p.err != nil {
		return p.err
	}
	if out == "" || len(p.positional) != 1 {
		return usageErrorf("%s needs -o and exactly one input", name)
	}
	if err := e.apply(); err != nil {
		return err
	}

	s, err := checkpoint.ReadFile(p.positional[0])
	if err != nil {
		return err
	}
	src, err := s.NewBuffer()
	if err != nil {
		return err
	}
	defer src.CleanUp()

	parallel := e.settings.Parallel.Workers != 1
	var dst *fb.Buffer
	var tiler fb.Tiler
	if untile {
		if width <= 0 || height <= 0 {
			width, height = src.Width(), src.Height()
		}
		tiler = fb.NewTiler(width, height)
		if dst, err = fb.NewBuffer(src.Format(), width, height); err != nil {
			return err
		}
		err = dst.Untile(src, tiler, parallel)
	} else {
		tiler = fb.NewTiler(src.Width(), src.Height())
		if dst, err = fb.NewBuffer(src.Format(), tiler.AlignedWidth(), tiler.AlignedHeight()); err != nil {
			return err
		}
		err = dst.TileFrom(src, tiler, parallel)
	}
	defer dst.CleanUp()
	if err != nil {
		return err
	}

	all := fb.NewTiler(dst.Width(), dst.Height()).All()
	out2, err := checkpoint.Capture(dst, all)
	if err != nil {
		return err
	}
	return e.write(out, out2)
}
