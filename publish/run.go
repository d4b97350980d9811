package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"

	"tlnote/bilibili"
	"tlnote/common"
	"tlnote/state"
	"tlnote/timeline"
)

// Flags returns publish command flags.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "bvid", Usage: "video `ID` to annotate, overrides configuration"},
		&cli.StringFlag{Name: "timeline", Aliases: []string{"t"}, Usage: "master timeline `FILE`, overrides configuration"},
		&cli.StringFlag{Name: "charset", Usage: "force `ENCODING` of the timeline (see IANA.org for character set names)"},
		&cli.BoolFlag{Name: "dry-run", Aliases: []string{"n"}, Usage: "assemble note without submitting it, note content goes to DESTINATION"},
		&cli.BoolFlag{Name: "offline", Usage: "do not contact platform at all, implies --dry-run"},
		&cli.StringFlag{Name: "parts", Usage: "video parts `FILE` (YAML) for offline passes"},
		&cli.StringFlag{Name: "memo", Usage: "remember last successful pass in `FILE`, unchanged videos are skipped"},
		&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "run the pass even if video parts did not change"},
	}
}

// Run is publish command action.
func Run(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("publish")
	cfg := &env.Cfg.Publish

	if v := cmd.String("bvid"); len(v) > 0 {
		cfg.BVID = v
	}
	if v := cmd.String("timeline"); len(v) > 0 {
		cfg.Timeline = v
	}
	if len(cfg.Timeline) == 0 {
		return errors.New("no timeline has been specified")
	}

	env.DryRun, env.Offline = cmd.Bool("dry-run"), cmd.Bool("offline")
	if env.Offline && !env.DryRun {
		log.Info("Offline pass is always a dry run")
		env.DryRun = true
	}

	cp := cmd.String("charset")
	if len(cp) == 0 {
		cp = cfg.Charset
	}
	if env.Charset, err = charset(cp, log); err != nil {
		return err
	}

	dst := cmd.Args().Get(0)
	if len(dst) > 0 && !env.DryRun {
		log.Warn("Destination is only used by dry runs, ignoring", zap.String("destination", dst))
	}
	if cmd.Args().Len() > 1 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}

	master, err := loadMaster(cfg.Timeline, cfg.TimelineFormat, env.Charset, log)
	if err != nil {
		return err
	}
	if err := env.Rpt.StoreCopy("input/"+filepath.Base(cfg.Timeline), cfg.Timeline); err != nil {
		log.Warn("Unable to store timeline in the report", zap.Error(err))
	}

	var platform Platform
	switch {
	case env.Offline:
		parts := cmd.String("parts")
		if len(parts) == 0 {
			return errors.New("offline pass requires parts file")
		}
		v, err := LoadParts(parts)
		if err != nil {
			return err
		}
		if err := env.Rpt.StoreCopy("input/"+filepath.Base(parts), parts); err != nil {
			log.Warn("Unable to store parts in the report", zap.Error(err))
		}
		if len(cfg.BVID) == 0 {
			cfg.BVID = v.BVID
		}
		platform = newOffline(v, log)
	case env.DryRun && len(cfg.Cookie.Value()) == 0:
		platform = bilibili.NewPublic(env.Cfg.Platform, log)
	default:
		if platform, err = bilibili.New(env.Cfg.Platform, cfg.Cookie.Value(), log); err != nil {
			return fmt.Errorf("unable to create platform client: %w", err)
		}
	}
	if len(cfg.BVID) == 0 && !env.Offline {
		return errors.New("no video has been specified")
	}

	memoFile := cmd.String("memo")
	var prev *Memo
	if len(memoFile) > 0 {
		if prev, err = LoadMemo(memoFile); err != nil {
			return err
		}
	}

	log.Info("Processing starting", zap.String("bvid", cfg.BVID), zap.String("timeline", cfg.Timeline), zap.Int("entries", master.Len()), zap.Bool("dry-run", env.DryRun))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	pass := New(env.Cfg, platform, log, WithReport(env.Rpt), WithDryRun(env.DryRun), WithForce(cmd.Bool("force")))
	out, err := pass.Execute(ctx, cfg.BVID, master, prev)
	if err != nil {
		return err
	}
	if out.Skipped {
		return nil
	}

	if env.DryRun {
		if err := writeContent(dst, out.Content); err != nil {
			return err
		}
	}

	if name, err := textFileName(cfg.Output, filepath.Dir(cfg.Timeline), Values{Title: out.Video.Title, BVID: out.Video.BVID, PassID: out.PassID}); err != nil {
		return err
	} else if len(name) > 0 {
		written, err := writeText(name, out.Video.Title, out.Result.Text, cfg.Preview)
		if err != nil {
			return err
		}
		log.Info("Text timeline written", zap.Strings("files", written))
	}

	if out.Submitted && len(memoFile) > 0 {
		memo := &Memo{BVID: out.Video.BVID, CIDs: out.Video.CIDs(), NoteID: out.NoteID, PassID: out.PassID, Time: time.Now()}
		if err := memo.Save(memoFile); err != nil {
			return err
		}
	}
	return nil
}

func charset(name string, log *zap.Logger) (encoding.Encoding, error) {
	if len(name) == 0 {
		return nil, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unknown character set %q: %w", name, err)
	}
	n, _ := ianaindex.IANA.Name(enc)
	log.Debug("Forcing timeline character set", zap.String("charset", n))
	return enc, nil
}

func loadMaster(path, format string, enc encoding.Encoding, log *zap.Logger) (timeline.Timeline, error) {
	var (
		fmtID common.TimelineFmt
		err   error
	)
	if len(format) > 0 {
		fmtID, err = common.ParseTimelineFmt(format)
	} else {
		fmtID, err = common.TimelineFmtFromPath(path)
	}
	if err != nil {
		return timeline.Timeline{}, err
	}

	loader := timeline.NewLoader(log)
	loader.Encoding = enc
	master, err := loader.LoadFile(path, fmtID)
	if err != nil {
		return timeline.Timeline{}, err
	}
	if skipped := loader.Skipped(); skipped != nil {
		log.Warn("Some timeline lines were skipped", zap.Error(skipped))
	}
	return master, nil
}

func writeContent(dst, content string) error {
	if len(dst) == 0 {
		_, err := fmt.Fprintln(os.Stdout, content)
		return err
	}
	if err := os.WriteFile(dst, []byte(content), 0644); err != nil {
		return fmt.Errorf("unable to write note content: %w", err)
	}
	return nil
}
