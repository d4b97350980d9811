// Package tools implements auxiliary commands: timeline conversion and
// merging, image upload.
package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"

	"tlnote/archive"
	"tlnote/common"
	"tlnote/state"
	"tlnote/timeline"
)

// ConvertFlags returns "timeline convert" flags.
func ConvertFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "from", Usage: "source `TYPE`, guessed from extension when absent"},
		&cli.StringFlag{Name: "to", Usage: "destination `TYPE`, guessed from extension when absent"},
		&cli.StringFlag{Name: "charset", Usage: "force `ENCODING` of the source (see IANA.org for character set names)"},
	}
}

// MergeFlags returns "timeline merge" flags.
func MergeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{Name: "offset", Aliases: []string{"o"},
			Usage: "shift `SECONDS` (or h:mm:ss) for the next part file, repeat for every part, missing offsets continue from the last part entry"},
		&cli.StringFlag{Name: "to", Usage: "destination `TYPE`, guessed from extension when absent"},
		&cli.StringFlag{Name: "charset", Usage: "force `ENCODING` of sources and of non UTF-8 file names in archives"},
	}
}

func formatFor(name, path string) (common.TimelineFmt, error) {
	if len(name) > 0 {
		return common.ParseTimelineFmt(name)
	}
	return common.TimelineFmtFromPath(path)
}

func charset(env *state.LocalEnv, name string, log *zap.Logger) error {
	if len(name) == 0 {
		return nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return fmt.Errorf("unknown character set %q: %w", name, err)
	}
	n, _ := ianaindex.IANA.Name(enc)
	log.Debug("Forcing character set", zap.String("charset", n))
	env.Charset = enc
	return nil
}

// Convert is "timeline convert" action.
func Convert(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("convert")

	if cmd.Args().Len() < 2 {
		return errors.New("both source and destination must be specified")
	}
	src, dst := cmd.Args().Get(0), cmd.Args().Get(1)
	if cmd.Args().Len() > 2 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}

	from, err := formatFor(cmd.String("from"), src)
	if err != nil {
		return err
	}
	to, err := formatFor(cmd.String("to"), dst)
	if err != nil {
		return err
	}
	if !to.Writable() {
		return fmt.Errorf("unable to save timeline as %s: %w", to, timeline.ErrUnknownFormat)
	}
	if err := charset(env, cmd.String("charset"), log); err != nil {
		return err
	}

	loader := timeline.NewLoader(log)
	loader.Encoding = env.Charset
	t, err := loader.LoadFile(src, from)
	if err != nil {
		return err
	}
	if skipped := loader.Skipped(); skipped != nil {
		log.Warn("Some lines were skipped", zap.Error(skipped))
	}
	if err := env.Rpt.StoreCopy("input/"+filepath.Base(src), src); err != nil {
		log.Warn("Unable to store source in the report", zap.Error(err))
	}

	if err := timeline.Save(dst, to, t); err != nil {
		return err
	}
	log.Info("Timeline converted", zap.String("source", src), zap.Stringer("from", from), zap.String("destination", dst), zap.Stringer("to", to), zap.Int("entries", t.Len()))
	return nil
}

// Merge is "timeline merge" action: part timelines are shifted by their
// offsets and concatenated into a single master timeline.
func Merge(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("merge")

	if cmd.Args().Len() < 2 {
		return errors.New("destination and at least one part must be specified")
	}
	dst := cmd.Args().Get(0)
	to, err := formatFor(cmd.String("to"), dst)
	if err != nil {
		return err
	}
	if !to.Writable() {
		return fmt.Errorf("unable to save timeline as %s: %w", to, timeline.ErrUnknownFormat)
	}
	if err := charset(env, cmd.String("charset"), log); err != nil {
		return err
	}

	var shifts []int
	for _, s := range cmd.StringSlice("offset") {
		sec, err := parseOffset(s)
		if err != nil {
			return fmt.Errorf("bad offset %q: %w", s, err)
		}
		shifts = append(shifts, sec)
	}

	log.Info("Processing starting", zap.String("destination", dst), zap.Strings("parts", cmd.Args().Slice()[1:]))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	parts, err := collectParts(ctx, cmd.Args().Slice()[1:], env.Charset, log)
	if err != nil {
		return err
	}
	merged, err := merge(parts, shifts, log)
	if err != nil {
		return err
	}
	return timeline.Save(dst, to, merged)
}

// Part is a single part timeline.
type Part struct {
	Name     string
	Timeline timeline.Timeline
}

// collectParts loads every timeline found under arguments. Files are taken
// in argument order, files under the same argument in natural order.
func collectParts(ctx context.Context, args []string, enc encoding.Encoding, log *zap.Logger) ([]Part, error) {
	resolver := archive.NewResolver(log)
	resolver.NameEncoding = enc
	resolver.Accept = func(name string) bool {
		_, err := common.TimelineFmtFromPath(name)
		return err == nil
	}

	var parts []Part
	for _, arg := range args {
		sources, err := resolver.Resolve(ctx, arg)
		if err != nil {
			return nil, err
		}
		if len(sources) == 0 {
			log.Warn("No timelines found", zap.String("path", arg))
		}
		for _, src := range sources {
			f, err := common.TimelineFmtFromPath(src.Name)
			if err != nil {
				return nil, err
			}
			loader := timeline.NewLoader(log)
			loader.Encoding = enc
			t, err := loader.Load(bytes.NewReader(src.Data), f)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", src.Name, err)
			}
			if skipped := loader.Skipped(); skipped != nil {
				log.Warn("Some lines were skipped", zap.String("part", src.Name), zap.Error(skipped))
			}
			parts = append(parts, Part{Name: src.Name, Timeline: t})
		}
	}
	if len(parts) == 0 {
		return nil, errors.New("no part timelines found")
	}
	return parts, nil
}

// merge shifts parts and concatenates them. Part without explicit offset
// starts right after the last entry of the previous part.
func merge(parts []Part, shifts []int, log *zap.Logger) (timeline.Timeline, error) {
	if len(shifts) > len(parts) {
		return timeline.Timeline{}, fmt.Errorf("%d offsets specified for %d parts", len(shifts), len(parts))
	}
	var (
		out  timeline.Timeline
		next int
	)
	for i, p := range parts {
		shift := next
		if i < len(shifts) {
			shift = shifts[i]
		}
		shifted := p.Timeline.Shift(shift)
		log.Debug("Merging part", zap.String("part", p.Name), zap.Int("shift", shift), zap.Int("entries", shifted.Len()))
		out = out.Concat(shifted)
		if n := shifted.Len(); n > 0 {
			next = shifted.Entries()[n-1].Seconds
		}
	}
	return out, nil
}

func parseOffset(s string) (int, error) {
	if sec, err := strconv.Atoi(s); err == nil {
		return sec, nil
	}
	neg := len(s) > 0 && s[0] == '-'
	if neg {
		s = s[1:]
	}
	sec, err := timeline.ParseClock(s)
	if err != nil {
		return 0, err
	}
	if neg {
		sec = -sec
	}
	return sec, nil
}
