// Package jobstore persists jobs as one JSON file each, guards scheduler
// passes with an advisory lock file and publishes feed files atomically.
package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"pagefeed/internal/domain/entity"
)

const jobExt = ".json"

// idPattern restricts job ids to names that are safe as file names.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

// Store keeps one <job_id>.json file per job in a directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore opens (creating if needed) a job directory.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create job dir: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the job directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(id string) (string, error) {
	if !idPattern.MatchString(id) {
		return "", &entity.InputError{Field: "job_id", Message: fmt.Sprintf("invalid job id %q", id)}
	}
	return filepath.Join(s.dir, id+jobExt), nil
}

// Get loads a job. It returns entity.ErrNotFound when no file exists.
func (s *Store) Get(ctx context.Context, id string) (*entity.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(id)
	if err != nil {
		return nil, err
	}
	return readJob(p)
}

// Save validates and writes job via temp file and rename. UpdatedAt is
// left to the caller.
func (s *Store) Save(ctx context.Context, job *entity.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := job.Validate(); err != nil {
		return err
	}
	p, err := s.path(job.ID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	if err := WriteFileAtomic(p, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// Delete removes a job file. Deleting a missing job is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

// List returns every readable job ordered by id. Unreadable files are
// logged and skipped so one corrupt job cannot stall a pass.
func (s *Store) List(ctx context.Context) ([]*entity.Job, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	var jobs []*entity.Job
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, jobExt) || !idPattern.MatchString(strings.TrimSuffix(name, jobExt)) {
			continue
		}
		job, err := readJob(filepath.Join(s.dir, name))
		if err != nil {
			s.logger.Warn("skipping unreadable job file",
				slog.String("file", name),
				slog.Any("error", err))
			continue
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs, nil
}

// FindByFeedFilename returns the job publishing filename.
func (s *Store) FindByFeedFilename(ctx context.Context, filename string) (*entity.Job, error) {
	jobs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		if j.FeedFilename == filename {
			return j, nil
		}
	}
	return nil, entity.ErrNotFound
}

func readJob(path string) (*entity.Job, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read job: %w", err)
	}
	var job entity.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return &job, nil
}

// WriteFileAtomic writes data to a temp file in the target directory,
// syncs it and renames it over path. Readers see the old or the new file,
// never a partial one.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
