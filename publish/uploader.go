package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"tlnote/note"
	"tlnote/utils/images"
)

// uploader prepares local images and stores them on the platform. When
// dry is set images are only prepared and addressed by local path.
type uploader struct {
	platform Platform
	cfg      images.Config
	dry      bool
	log      *zap.Logger
}

func (u *uploader) UploadImage(ctx context.Context, path string) (note.Uploaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return note.Uploaded{}, err
	}
	img, err := images.Prepare(filepath.Base(path), data, u.cfg, u.log)
	if err != nil {
		return note.Uploaded{}, err
	}
	if u.dry {
		u.log.Debug("Image prepared, not uploading", zap.String("path", path), zap.String("name", img.Name), zap.Int("width", img.Width))
		return note.Uploaded{Location: "file://" + filepath.ToSlash(path), Width: img.Width}, nil
	}
	loc, err := u.platform.UploadImage(ctx, img.Name, img.Data)
	if err != nil {
		return note.Uploaded{}, fmt.Errorf("unable to upload %s: %w", img.Name, err)
	}
	return note.Uploaded{Location: loc, Width: img.Width}, nil
}
