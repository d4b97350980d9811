package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	yaml "gopkg.in/yaml.v3"

	"tlnote/bilibili"
)

// Platform is everything publish pass needs from remote side.
type Platform interface {
	Video(ctx context.Context, bvid string) (*bilibili.Video, error)
	VideoTitle(ctx context.Context, id string) (string, error)
	NoteIDs(ctx context.Context, aid int64) ([]string, error)
	CreateNote(ctx context.Context, aid int64, title string) (string, error)
	SubmitNote(ctx context.Context, s bilibili.Submission) (string, error)
	UploadImage(ctx context.Context, name string, data []byte) (string, error)
}

var errOffline = errors.New("operation is not available offline")

// offline serves video metadata from local file and never reaches the
// network: video references resolve to themselves.
type offline struct {
	video *bilibili.Video
	log   *zap.Logger
}

// LoadParts reads video metadata (YAML) for offline passes.
func LoadParts(path string) (*bilibili.Video, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read parts file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var v bilibili.Video
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("unable to decode parts file %s: %w", path, err)
	}
	if len(v.Parts) == 0 {
		return nil, fmt.Errorf("parts file %s lists no parts", path)
	}
	for i := range v.Parts {
		if v.Parts[i].Index == 0 {
			v.Parts[i].Index = i + 1
		}
		if v.Parts[i].Count == 0 {
			v.Parts[i].Count = len(v.Parts)
		}
	}
	return &v, nil
}

func newOffline(v *bilibili.Video, log *zap.Logger) *offline {
	return &offline{video: v, log: log.Named("offline")}
}

func (o *offline) Video(_ context.Context, bvid string) (*bilibili.Video, error) {
	if len(bvid) > 0 && len(o.video.BVID) > 0 && bvid != o.video.BVID {
		o.log.Warn("Parts file describes different video", zap.String("requested", bvid), zap.String("parts", o.video.BVID))
	}
	return o.video, nil
}

func (o *offline) VideoTitle(_ context.Context, id string) (string, error) {
	return id, nil
}

func (o *offline) NoteIDs(context.Context, int64) ([]string, error) {
	return nil, nil
}

func (o *offline) CreateNote(context.Context, int64, string) (string, error) {
	return "", errOffline
}

func (o *offline) SubmitNote(context.Context, bilibili.Submission) (string, error) {
	return "", errOffline
}

func (o *offline) UploadImage(_ context.Context, name string, _ []byte) (string, error) {
	return "", errOffline
}
