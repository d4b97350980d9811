package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"tlnote/bilibili"
	"tlnote/state"
	"tlnote/utils/images"
)

// ImageStore is where images are uploaded.
type ImageStore interface {
	UploadImage(ctx context.Context, name string, data []byte) (string, error)
}

// Upload is "upload" action: every image is prepared, uploaded and its
// location is printed.
func Upload(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("upload")

	if cmd.Args().Len() == 0 {
		return errors.New("no image has been specified")
	}
	client, err := bilibili.New(env.Cfg.Platform, env.Cfg.Publish.Cookie.Value(), log)
	if err != nil {
		return fmt.Errorf("unable to create platform client: %w", err)
	}
	for _, path := range cmd.Args().Slice() {
		loc, err := uploadFile(ctx, client, path, env.Cfg.Images.Config, log)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(cmd.Root().Writer, loc); err != nil {
			return err
		}
	}
	return nil
}

func uploadFile(ctx context.Context, s ImageStore, path string, cfg images.Config, log *zap.Logger) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("unable to read image: %w", err)
	}
	img, err := images.Prepare(filepath.Base(path), data, cfg, log)
	if err != nil {
		return "", err
	}
	if img.Changed {
		log.Info("Image was converted before upload", zap.String("name", img.Name), zap.String("type", img.MimeType), zap.Int("width", img.Width), zap.Int("height", img.Height))
	}
	loc, err := s.UploadImage(ctx, img.Name, img.Data)
	if err != nil {
		return "", fmt.Errorf("unable to upload %s: %w", path, err)
	}
	log.Info("Image uploaded", zap.String("path", path), zap.String("location", loc))
	return loc, nil
}
