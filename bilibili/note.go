package bilibili

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// NoteIDs lists ids of notes current user has for the video.
func (c *Client) NoteIDs(ctx context.Context, aid int64) ([]string, error) {
	var out struct {
		NoteIDs []json.Number `json:"noteIds"`
	}
	if err := c.get(ctx, pathNoteList, url.Values{"oid": {strconv.FormatInt(aid, 10)}}, &out); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(out.NoteIDs))
	for _, id := range out.NoteIDs {
		ids = append(ids, id.String())
	}
	return ids, nil
}

type noteAdded struct {
	NoteID json.Number `json:"note_id"`
}

// CreateNote adds empty note to the video so it gets an id.
func (c *Client) CreateNote(ctx context.Context, aid int64, title string) (string, error) {
	if err := c.pause(ctx); err != nil {
		return "", err
	}
	var out noteAdded
	err := c.postForm(ctx, pathNoteAdd, url.Values{
		"oid":     {strconv.FormatInt(aid, 10)},
		"title":   {title},
		"summary": {" "},
	}, &out)
	if err != nil {
		return "", err
	}
	if len(out.NoteID) == 0 {
		return "", fmt.Errorf("%s: no note id returned", pathNoteAdd)
	}
	return out.NoteID.String(), nil
}

// Submission is complete note content.
type Submission struct {
	AID     int64
	NoteID  string
	Title   string
	Summary string
	// Content is JSON encoded document.
	Content string
	// Length is length reported for the document.
	Length      int
	Hash        string
	Publish     bool
	AutoComment bool
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// SubmitNote stores note content, optionally publishing it.
func (c *Client) SubmitNote(ctx context.Context, s Submission) (string, error) {
	if err := c.pause(ctx); err != nil {
		return "", err
	}
	var out noteAdded
	err := c.postForm(ctx, pathNoteAdd, url.Values{
		"oid":          {strconv.FormatInt(s.AID, 10)},
		"note_id":      {s.NoteID},
		"title":        {s.Title},
		"summary":      {s.Summary},
		"content":      {s.Content},
		"cont_len":     {strconv.Itoa(s.Length)},
		"hash":         {s.Hash},
		"publish":      {flag(s.Publish)},
		"auto_comment": {flag(s.Publish && s.AutoComment)},
	}, &out)
	if err != nil {
		return "", err
	}
	if len(out.NoteID) == 0 {
		return "", fmt.Errorf("%s: note was not stored", pathNoteAdd)
	}
	return out.NoteID.String(), nil
}
