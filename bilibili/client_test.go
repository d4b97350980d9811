package bilibili

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"tlnote/retry"
)

const testCookie = "SESSDATA=abc; bili_jct=0123456789abcdef0123456789ABCDEF; other=1"

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.APIBase = srv.URL
	cfg.Pause = 0
	cfg.Retry = retry.Config{Attempts: 3, Initial: time.Millisecond, Max: time.Millisecond, Factor: 1}
	c, err := New(cfg, testCookie, zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller(), zap.AddCallerSkip(1))))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestParseCookie(t *testing.T) {
	csrf, err := ParseCookie(testCookie)
	if err != nil || csrf != "0123456789abcdef0123456789ABCDEF" {
		t.Errorf("ParseCookie() = %q, %v", csrf, err)
	}
	for _, bad := range []string{"", "SESSDATA=abc", "bili_jct=0123456789abcdef0123456789ABCDEF", "SESSDATA=1; bili_jct=short"} {
		if _, err := ParseCookie(bad); !errors.Is(err, ErrBadCookie) {
			t.Errorf("ParseCookie(%q) error = %v, want ErrBadCookie", bad, err)
		}
	}
}

func TestVideo(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != pathView || r.URL.Query().Get("bvid") != "BV1xx411c7mD" {
			t.Errorf("unexpected request %s", r.URL)
		}
		if !strings.Contains(r.Header.Get("Cookie"), "SESSDATA=abc") || r.Header.Get("Referer") == "" {
			t.Errorf("missing headers: %v", r.Header)
		}
		io.WriteString(w, `{"code":0,"message":"0","data":{"aid":170001,"bvid":"BV1xx411c7mD","title":"Live","pic":"p.jpg",
			"pages":[{"cid":1,"page":1,"part":"P1","duration":3600},{"cid":2,"page":2,"part":"P2 弹幕","duration":1800}]}}`)
	}))

	v, err := c.Video(context.Background(), "BV1xx411c7mD")
	if err != nil {
		t.Fatalf("Video() error = %v", err)
	}
	if v.AID != 170001 || v.Title != "Live" || len(v.Parts) != 2 {
		t.Fatalf("Video() = %+v", v)
	}
	if p := v.Parts[1]; p.CID != 2 || p.Index != 2 || p.Count != 2 || p.Title != "P2 弹幕" || p.Duration != 1800 {
		t.Errorf("part = %+v", p)
	}
	if got := v.CIDs(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("CIDs() = %v", got)
	}
}

func TestVideoTitle_APIError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		io.WriteString(w, `{"code":-404,"message":"啥都木有"}`)
	}))
	_, err := c.VideoTitle(context.Background(), "BV1xx411c7mD")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != -404 {
		t.Fatalf("VideoTitle() error = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("API errors must not be retried, calls = %d", calls.Load())
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, `{"code":0,"data":{"title":"ok"}}`)
	}))
	title, err := c.VideoTitle(context.Background(), "BV1xx411c7mD")
	if err != nil || title != "ok" {
		t.Errorf("VideoTitle() = %q, %v", title, err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestNotes(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case pathNoteList:
			if r.URL.Query().Get("oid") != "42" {
				t.Errorf("oid = %q", r.URL.Query().Get("oid"))
			}
			io.WriteString(w, `{"code":0,"data":{"noteIds":[12345678901234567, "99"]}}`)
		case pathNoteAdd:
			if err := r.ParseForm(); err != nil {
				t.Error(err)
				return
			}
			if r.PostForm.Get("csrf") != "0123456789abcdef0123456789ABCDEF" {
				t.Errorf("csrf = %q", r.PostForm.Get("csrf"))
			}
			if r.PostForm.Get("note_id") == "" {
				if r.PostForm.Get("summary") != " " {
					t.Errorf("create summary = %q", r.PostForm.Get("summary"))
				}
				io.WriteString(w, `{"code":0,"data":{"note_id":"555"}}`)
				return
			}
			want := map[string]string{
				"oid": "42", "note_id": "555", "content": `[{"insert":"\n"}]`,
				"cont_len": "311", "hash": "1700000000000", "publish": "1", "auto_comment": "0",
			}
			for k, v := range want {
				if got := r.PostForm.Get(k); got != v {
					t.Errorf("%s = %q, want %q", k, got, v)
				}
			}
			io.WriteString(w, `{"code":0,"data":{"note_id":555}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	ctx := context.Background()
	ids, err := c.NoteIDs(ctx, 42)
	if err != nil || len(ids) != 2 || ids[0] != "12345678901234567" || ids[1] != "99" {
		t.Errorf("NoteIDs() = %v, %v", ids, err)
	}
	id, err := c.CreateNote(ctx, 42, "Live")
	if err != nil || id != "555" {
		t.Errorf("CreateNote() = %q, %v", id, err)
	}
	id, err = c.SubmitNote(ctx, Submission{
		AID: 42, NoteID: "555", Title: "Live", Summary: "cover", Content: `[{"insert":"\n"}]`,
		Length: 311, Hash: "1700000000000", Publish: true, AutoComment: false,
	})
	if err != nil || id != "555" {
		t.Errorf("SubmitNote() = %q, %v", id, err)
	}
}

func TestUploadImage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Error(err)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Error(err)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "a.png" || string(data) != "PNGDATA" || r.FormValue("csrf") == "" {
			t.Errorf("upload = %q %q csrf %q", hdr.Filename, data, r.FormValue("csrf"))
		}
		io.WriteString(w, `{"code":0,"data":{"location":"//api.bilibili.com/x/note/image?image_id=7"}}`)
	}))
	loc, err := c.UploadImage(context.Background(), "a.png", []byte("PNGDATA"))
	if err != nil || loc != "//api.bilibili.com/x/note/image?image_id=7" {
		t.Errorf("UploadImage() = %q, %v", loc, err)
	}
}

func TestPublicClientRefusesMutations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pause = 0
	c := NewPublic(cfg, nil)
	if c.Authenticated() {
		t.Error("public client reports authenticated")
	}
	if _, err := c.CreateNote(context.Background(), 1, "x"); !errors.Is(err, ErrBadCookie) {
		t.Errorf("CreateNote() error = %v", err)
	}
	if _, err := c.UploadImage(context.Background(), "x", nil); !errors.Is(err, ErrBadCookie) {
		t.Errorf("UploadImage() error = %v", err)
	}
}
