package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nao1215/doccrawl/internal/model"
)

var (
	// ErrOutputNotWritable is returned when the output directory cannot be
	// created or written to.
	ErrOutputNotWritable = errors.New("output directory is not writable")

	// ErrInvalidPolicy is returned for unknown collision policies.
	ErrInvalidPolicy = errors.New("invalid collision policy")
)

// Sink persists extracted pages.
type Sink interface {
	// Persist writes page and returns the path it was written to.
	Persist(ctx context.Context, page model.ExtractedPage) (string, error)
}

// Reserver is implemented by sinks that assign output names ahead of
// writing. The coordinator reserves names in crawl order so that name
// assignment does not depend on which worker finishes first.
type Reserver interface {
	Reserve(rawURL string) string
}

// CollisionPolicy decides what happens when two different URLs sanitize to
// the same filename.
type CollisionPolicy string

const (
	// CollisionSuffix keeps the plain name for the first URL that reserved
	// it and gives every later URL SuffixedFilename. Nothing is lost.
	CollisionSuffix CollisionPolicy = "suffix"

	// CollisionOverwrite gives every URL the plain name. Among colliding
	// URLs, the one reserved last in crawl order ends up in the file;
	// earlier content is lost and a warning is logged.
	CollisionOverwrite CollisionPolicy = "overwrite"
)

// ParseCollisionPolicy validates a policy name.
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch p := CollisionPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case CollisionSuffix, CollisionOverwrite:
		return p, nil
	case "":
		return CollisionSuffix, nil
	default:
		return "", fmt.Errorf("%w: %q (want suffix or overwrite)", ErrInvalidPolicy, s)
	}
}

const (
	dirMode  = 0750
	fileMode = 0600
)

type reservation struct {
	name string
	seq  int
}

// FileSink writes one markdown file per page into a directory.
// Each file starts with a "# Source: <url>" line and a blank line.
// Files left over from earlier runs are overwritten.
type FileSink struct {
	dir    string
	policy CollisionPolicy
	logger *slog.Logger

	mu       sync.Mutex
	byURL    map[string]reservation
	owners   map[string]string // filename -> url holding the plain name
	written  map[string]int    // filename -> seq of the content on disk
	seq      int
	writeMu  sync.Mutex
	failures int
}

// Option configures a FileSink.
type Option func(*FileSink)

// WithCollisionPolicy sets the collision policy. The default is
// CollisionSuffix.
func WithCollisionPolicy(p CollisionPolicy) Option {
	return func(s *FileSink) {
		s.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *FileSink) {
		s.logger = logger
	}
}

// NewFileSink creates dir if needed and verifies that files can be created
// in it.
func NewFileSink(dir string, opts ...Option) (*FileSink, error) {
	s := &FileSink{
		dir:     dir,
		policy:  CollisionSuffix,
		byURL:   make(map[string]reservation),
		owners:  make(map[string]string),
		written: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if _, err := ParseCollisionPolicy(string(s.policy)); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOutputNotWritable, dir, err)
	}
	probe, err := os.CreateTemp(dir, ".doccrawl-probe-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOutputNotWritable, dir, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)

	return s, nil
}

// Dir returns the output directory.
func (s *FileSink) Dir() string {
	return s.dir
}

// Policy returns the collision policy.
func (s *FileSink) Policy() CollisionPolicy {
	return s.policy
}

// Reserve assigns the output filename for rawURL. Repeated calls for the
// same URL return the same name.
func (s *FileSink) Reserve(rawURL string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reserveLocked(rawURL).name
}

func (s *FileSink) reserveLocked(rawURL string) reservation {
	if r, ok := s.byURL[rawURL]; ok {
		return r
	}

	s.seq++
	name := SanitizeFilename(rawURL)
	owner, taken := s.owners[name]

	switch {
	case !taken:
		s.owners[name] = rawURL
	case s.policy == CollisionSuffix:
		plain := name
		name = SuffixedFilename(rawURL)
		s.logger.Warn("filename collision, using suffixed name",
			"url", rawURL, "owner", owner, "filename", plain, "assigned", name)
	default:
		s.logger.Warn("filename collision, later page overwrites earlier",
			"url", rawURL, "previous", owner, "filename", name)
		s.owners[name] = rawURL
	}

	r := reservation{name: name, seq: s.seq}
	s.byURL[rawURL] = r
	return r
}

// Persist implements Sink.
func (s *FileSink) Persist(ctx context.Context, page model.ExtractedPage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	r := s.reserveLocked(page.URL)
	s.mu.Unlock()

	path := filepath.Join(s.dir, r.name)

	if s.policy == CollisionOverwrite {
		// Writes to shared names are ordered by reservation so the last
		// URL in crawl order wins regardless of completion order.
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		s.mu.Lock()
		newer := s.written[r.name] > r.seq
		s.mu.Unlock()
		if newer {
			s.logger.Debug("skipping write superseded by later page", "url", page.URL, "filename", r.name)
			return path, nil
		}
	}

	if err := writeFile(path, render(page)); err != nil {
		s.mu.Lock()
		s.failures++
		s.mu.Unlock()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	s.mu.Lock()
	if r.seq > s.written[r.name] {
		s.written[r.name] = r.seq
	}
	s.mu.Unlock()
	return path, nil
}

// Failures returns the number of failed writes.
func (s *FileSink) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// render produces the file content for page.
func render(page model.ExtractedPage) []byte {
	var sb strings.Builder
	sb.Grow(len(page.URL) + len(page.Markdown) + 16)
	sb.WriteString("# Source: ")
	sb.WriteString(page.URL)
	sb.WriteString("\n\n")
	sb.WriteString(page.Markdown)
	return []byte(sb.String())
}

// writeFile writes data to a temporary file in the target directory and
// renames it into place, so readers never see a partial file.
func writeFile(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".doccrawl-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Chmod(fileMode); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
