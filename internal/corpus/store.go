// Package corpus stores tracker issues as append-only, deduplicated batch files.
package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/apichanges/internal/model"
)

// Tracker is the read-only issue source.
type Tracker interface {
	// Issues calls fn for every issue in the tracker's native order. Iteration
	// stops at the first error returned by fn, which Issues returns unchanged.
	Issues(ctx context.Context, fn func(model.Issue) error) error
	// Comments returns the comments of one issue in tracker order.
	Comments(ctx context.Context, number int) ([]model.Comment, error)
}

// Batch is the on-disk shape of one batch file.
type Batch struct {
	Name   string        `json:"name"`
	Issues []model.Issue `json:"issues"`
}

// FetchResult describes one FetchBatch run.
type FetchResult struct {
	Batch   int    // batch number written, 0 when nothing was new
	Path    string // file written, "" when nothing was new
	Issues  int    // new issues stored
	Skipped int    // issues seen that were already stored
}

var batchName = regexp.MustCompile(`^batch_(\d+)\.json$`)

var errBatchFull = errors.New("batch full")

// Store reads and appends batch files in one directory.
type Store struct {
	dir  string
	repo string
}

// NewStore returns a store over dir. repo is recorded as the batch name.
func NewStore(dir, repo string) *Store {
	return &Store{dir: dir, repo: repo}
}

// Dir returns the batch directory.
func (s *Store) Dir() string {
	return s.dir
}

type batchFile struct {
	number int
	path   string
}

// batchFiles lists batch files ordered by batch number.
func (s *Store) batchFiles() ([]batchFile, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing batches: %w", err)
	}

	var files []batchFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := batchName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		files = append(files, batchFile{number: n, path: filepath.Join(s.dir, e.Name())})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].number < files[j].number })
	return files, nil
}

func readBatch(path string) (Batch, error) {
	var b Batch
	data, err := os.ReadFile(path)
	if err != nil {
		return b, fmt.Errorf("reading batch %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &b); err != nil {
		return b, fmt.Errorf("malformed batch %s: %w", path, err)
	}
	return b, nil
}

// StoredIdentifiers scans every batch and returns the issue numbers already stored.
func (s *Store) StoredIdentifiers() (map[int]struct{}, error) {
	files, err := s.batchFiles()
	if err != nil {
		return nil, err
	}
	ids := make(map[int]struct{})
	for _, f := range files {
		b, err := readBatch(f.path)
		if err != nil {
			return nil, err
		}
		for _, issue := range b.Issues {
			ids[issue.Number] = struct{}{}
		}
	}
	return ids, nil
}

// LoadAll concatenates every batch in ascending batch order. A malformed
// batch fails the whole load.
func (s *Store) LoadAll() ([]model.Issue, error) {
	files, err := s.batchFiles()
	if err != nil {
		return nil, err
	}
	var issues []model.Issue
	for _, f := range files {
		b, err := readBatch(f.path)
		if err != nil {
			return nil, err
		}
		issues = append(issues, b.Issues...)
	}
	return issues, nil
}

// Stats returns the number of batch files and stored issues.
func (s *Store) Stats() (batches, issues int, err error) {
	files, err := s.batchFiles()
	if err != nil {
		return 0, 0, err
	}
	ids, err := s.StoredIdentifiers()
	if err != nil {
		return 0, 0, err
	}
	return len(files), len(ids), nil
}

// FetchBatch pulls up to maxSize issues that are not yet stored, together with
// their comments, and writes them as the next batch. Any tracker error aborts
// the run without writing anything.
func (s *Store) FetchBatch(ctx context.Context, tracker Tracker, maxSize int) (FetchResult, error) {
	var result FetchResult
	if maxSize <= 0 {
		return result, fmt.Errorf("batch size must be positive, got %d", maxSize)
	}

	stored, err := s.StoredIdentifiers()
	if err != nil {
		return result, err
	}

	var fresh []model.Issue
	err = tracker.Issues(ctx, func(issue model.Issue) error {
		if _, ok := stored[issue.Number]; ok {
			result.Skipped++
			return nil
		}
		comments, err := tracker.Comments(ctx, issue.Number)
		if err != nil {
			return fmt.Errorf("fetching comments for issue #%d: %w", issue.Number, err)
		}
		issue.Comments = comments
		if issue.Tags == nil {
			issue.Tags = []string{}
		}
		if issue.Comments == nil {
			issue.Comments = []model.Comment{}
		}
		fresh = append(fresh, issue)
		stored[issue.Number] = struct{}{}

		log.Debug().Int("issue", issue.Number).Int("comments", len(comments)).Msg("fetched issue")
		if len(fresh) >= maxSize {
			return errBatchFull
		}
		return nil
	})
	if err != nil && !errors.Is(err, errBatchFull) {
		return result, fmt.Errorf("fetching issues: %w", err)
	}

	if len(fresh) == 0 {
		return result, nil
	}

	files, err := s.batchFiles()
	if err != nil {
		return result, err
	}
	next := 1
	if len(files) > 0 {
		next = files[len(files)-1].number + 1
	}

	path := filepath.Join(s.dir, fmt.Sprintf("batch_%d.json", next))
	if err := writeExclusive(path, Batch{Name: s.repo, Issues: fresh}); err != nil {
		return result, err
	}

	result.Batch = next
	result.Path = path
	result.Issues = len(fresh)
	log.Info().Int("batch", next).Int("issues", len(fresh)).Int("skipped", result.Skipped).Msg("stored batch")
	return result, nil
}

// writeExclusive writes the batch to a temp file and links it into place, so
// the final name never holds a partial file and an existing batch is never
// replaced.
func writeExclusive(path string, b Batch) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding batch: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating batch directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".batch-*")
	if err != nil {
		return fmt.Errorf("creating temp batch: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing batch: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing batch: %w", err)
	}
	if err := os.Link(tmp.Name(), path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("batch %s already exists; another ingestion may be running: %w", path, err)
		}
		return fmt.Errorf("storing batch %s: %w", path, err)
	}
	return nil
}
