package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/vrsandeep/mango-scraper/internal/models"
	"github.com/vrsandeep/mango-scraper/internal/store"
	"github.com/vrsandeep/mango-scraper/internal/util"
)

// InboxPriority puts hand-delivered chapters ahead of anything discovered.
const InboxPriority = 10

var ErrBadFileName = errors.New("file name must look like <sourceID>_<chapter>[_title].<ext>")

var inboxNameRegex = regexp.MustCompile(`^(\d+)_(\d+(?:\.\d+)?)(?:_(.*))?$`)

// FileName is what an inbox file name encodes.
type FileName struct {
	SourceID      int64
	ChapterNumber float64
	Title         string
}

// ParseFileName reads a name such as "12_105.5_The_Finale.cbz".
func ParseFileName(name string) (FileName, error) {
	base := filepath.Base(name)
	if !IsSupported(base) {
		return FileName{}, fmt.Errorf("%w: %s", ErrUnsupportedFile, base)
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	m := inboxNameRegex.FindStringSubmatch(stem)
	if m == nil {
		return FileName{}, fmt.Errorf("%w: got %q", ErrBadFileName, base)
	}
	sourceID, _ := strconv.ParseInt(m[1], 10, 64)
	number, _ := strconv.ParseFloat(m[2], 64)
	return FileName{
		SourceID:      sourceID,
		ChapterNumber: number,
		Title:         strings.TrimSpace(strings.ReplaceAll(m[3], "_", " ")),
	}, nil
}

// FileURL is the queue URL of a local chapter file.
func FileURL(absPath string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(absPath)}).String()
}

// PathFromURL returns the local path of a file:// URL.
func PathFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("not a file URL: %s", raw)
	}
	return filepath.FromSlash(u.Path), nil
}

// Inbox is the directory local chapter files are dropped into.
type Inbox struct {
	dir         string
	st          *store.Store
	maxAttempts int
}

func NewInbox(dir string, st *store.Store, maxAttempts int) *Inbox {
	return &Inbox{dir: dir, st: st, maxAttempts: maxAttempts}
}

func (in *Inbox) Dir() string {
	return in.dir
}

// Enqueue adds the file at path to the download queue. Enqueueing the same
// (source, chapter) twice is a no-op.
func (in *Inbox) Enqueue(ctx context.Context, path string) (*models.QueueItem, bool, error) {
	name, err := ParseFileName(path)
	if err != nil {
		return nil, false, err
	}
	if _, err := in.st.GetSource(ctx, name.SourceID); err != nil {
		return nil, false, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false, err
	}
	title := name.Title
	if title == "" {
		title = "Chapter " + util.FormatChapterNumber(name.ChapterNumber)
	}
	id, inserted, err := in.st.EnqueueChapter(ctx, models.NewQueueItem{
		SourceID:      name.SourceID,
		ChapterNumber: name.ChapterNumber,
		ChapterURL:    FileURL(abs),
		ChapterTitle:  title,
		Priority:      InboxPriority,
		MaxAttempts:   in.maxAttempts,
	})
	if err != nil {
		return nil, false, err
	}
	item, err := in.st.GetQueueItem(ctx, id)
	return item, inserted, err
}

// Save writes an uploaded chapter file into the inbox under its canonical
// name and enqueues it.
func (in *Inbox) Save(ctx context.Context, name FileName, ext string, r io.Reader) (*models.QueueItem, bool, error) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if !IsSupported("x" + ext) {
		return nil, false, fmt.Errorf("%w: %s", ErrUnsupportedFile, ext)
	}
	if _, err := in.st.GetSource(ctx, name.SourceID); err != nil {
		return nil, false, err
	}
	if err := os.MkdirAll(in.dir, 0o755); err != nil {
		return nil, false, err
	}

	fileName := fmt.Sprintf("%d_%s", name.SourceID, util.FormatChapterNumber(name.ChapterNumber))
	if title := sanitizeTitle(name.Title); title != "" {
		fileName += "_" + title
	}
	dest := filepath.Join(in.dir, fileName+ext)

	// Written under a temporary name so the watcher never sees a partial file.
	tmp, err := os.CreateTemp(in.dir, ".upload-*")
	if err != nil {
		return nil, false, err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, false, fmt.Errorf("save upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, false, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return nil, false, err
	}
	return in.Enqueue(ctx, dest)
}

var unsafeTitleChars = regexp.MustCompile(`[^\p{L}\p{N}]+`)

func sanitizeTitle(title string) string {
	return strings.Trim(unsafeTitleChars.ReplaceAllString(title, "_"), "_")
}
