package bilibili

import (
	"context"
	"net/url"

	"tlnote/offsets"
)

// Video is published video metadata.
type Video struct {
	AID   int64          `json:"aid" yaml:"aid"`
	BVID  string         `json:"bvid" yaml:"bvid"`
	Title string         `json:"title" yaml:"title"`
	Pic   string         `json:"pic" yaml:"pic,omitempty"`
	Parts []offsets.Part `json:"-" yaml:"parts"`
}

// CIDs lists part ids in order, used to detect whether part collection
// changed since previous pass.
func (v *Video) CIDs() []int64 {
	out := make([]int64, 0, len(v.Parts))
	for _, p := range v.Parts {
		out = append(out, p.CID)
	}
	return out
}

type page struct {
	CID      int64  `json:"cid"`
	Page     int    `json:"page"`
	Part     string `json:"part"`
	Duration int    `json:"duration"`
}

// Video fetches video metadata.
func (c *Client) Video(ctx context.Context, bvid string) (*Video, error) {
	var out struct {
		Video
		Pages []page `json:"pages"`
	}
	if err := c.get(ctx, pathView, url.Values{"bvid": {bvid}}, &out); err != nil {
		return nil, err
	}
	v := out.Video
	for _, p := range out.Pages {
		v.Parts = append(v.Parts, offsets.Part{
			CID:      p.CID,
			Index:    p.Page,
			Count:    len(out.Pages),
			Title:    p.Part,
			Duration: p.Duration,
		})
	}
	return &v, nil
}

// VideoTitle resolves video id to its title.
func (c *Client) VideoTitle(ctx context.Context, id string) (string, error) {
	var out struct {
		Title string `json:"title"`
	}
	if err := c.get(ctx, pathView, url.Values{"bvid": {id}}, &out); err != nil {
		return "", err
	}
	return out.Title, nil
}
