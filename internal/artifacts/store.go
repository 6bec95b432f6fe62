// Package artifacts owns the on-disk layout of client results and experiment
// definitions. Every client has one directory under each root, named after its
// username; nothing derived from a request is used as a path without passing
// through SafeJoin first.
package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/geocoder89/centinel/internal/cache"
	"github.com/geocoder89/centinel/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	ErrNotFound    = errors.New("artifact not found")
	ErrBadFileName = errors.New("file name is empty after sanitizing")
)

const (
	resultExt = ".json"

	// files starting with this prefix are never listed; uploads are staged under it
	reservedPrefix = "_"

	dirPerm = 0o755
)

type Options struct {
	ResultsDir     string
	ExperimentsDir string
	// ExperimentExt is the suffix of experiment files, ".py" by default.
	ExperimentExt string

	Cache  cache.ResultsCache
	Logger *slog.Logger
	Prom   *observability.Prom
}

type Store struct {
	resultsDir     string
	experimentsDir string
	experimentExt  string

	cache cache.ResultsCache
	log   *slog.Logger
	prom  *observability.Prom
	locks *keyedLocks
}

// New creates both roots if needed.
func New(opts Options) (*Store, error) {
	if opts.ResultsDir == "" || opts.ExperimentsDir == "" {
		return nil, errors.New("artifacts: results and experiments roots are required")
	}

	for _, root := range []string{opts.ResultsDir, opts.ExperimentsDir} {
		if err := os.MkdirAll(root, dirPerm); err != nil {
			return nil, fmt.Errorf("artifacts: create root: %w", err)
		}
	}

	ext := opts.ExperimentExt
	if ext == "" {
		ext = ".py"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	c := opts.Cache
	if c == nil {
		c = cache.Noop{}
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Store{
		resultsDir:     opts.ResultsDir,
		experimentsDir: opts.ExperimentsDir,
		experimentExt:  ext,
		cache:          c,
		log:            log,
		prom:           opts.Prom,
		locks:          newKeyedLocks(),
	}, nil
}

// Provision creates the results and experiments directories of username. The
// returned undo removes only the directories this call created, so a failed
// registration never deletes storage that was already there.
func (s *Store) Provision(username string) (undo func() error, err error) {
	dirs := make([]string, 0, 2)
	for _, root := range []string{s.resultsDir, s.experimentsDir} {
		dir, err := clientDir(root, username)
		if err != nil {
			return nil, err
		}
		dirs = append(dirs, dir)
	}

	unlock := s.locks.Lock(username)
	defer unlock()

	var created []string

	undo = func() error {
		var errs []error
		for i := len(created) - 1; i >= 0; i-- {
			if err := os.Remove(created[i]); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	for _, dir := range dirs {
		err := os.Mkdir(dir, dirPerm)

		switch {
		case err == nil:
			created = append(created, dir)
		case errors.Is(err, fs.ErrExist):
			// left over from an earlier attempt; reuse it
		default:
			_ = undo()
			return nil, fmt.Errorf("provision %s: %w", filepath.Base(filepath.Dir(dir)), err)
		}
	}

	return undo, nil
}

// SubmitResult stores content as fileName in the client's results directory,
// replacing any earlier file of the same name. The write goes to a staging
// file first and is renamed into place, so readers never see half a file.
// Empty content is stored as is; ListResults skips it as invalid JSON.
func (s *Store) SubmitResult(ctx context.Context, username, fileName string, content io.Reader) (name string, err error) {
	ctx, span := observability.StartSpan(ctx, "artifacts.submit_result")
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	name = SanitizeFileName(fileName)
	if name == "" {
		return "", ErrBadFileName
	}

	dir, err := clientDir(s.resultsDir, username)
	if err != nil {
		return "", err
	}

	target, err := SafeJoin(dir, name)
	if err != nil {
		return "", ErrBadFileName
	}

	unlock := s.locks.Lock(username)
	defer unlock()

	if err := s.ensureResultsDir(ctx, dir); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dir, reservedPrefix+"upload-*.tmp")
	if err != nil {
		return "", fmt.Errorf("stage result: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := io.Copy(tmp, content); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write result: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("sync result: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close result: %w", err)
	}

	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("chmod result: %w", err)
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("commit result: %w", err)
	}
	committed = true

	if err := s.cache.Invalidate(ctx, username); err != nil {
		s.log.WarnContext(ctx, "results cache invalidation failed", "err", err)
	}

	s.prom.ObserveResultWritten()
	span.SetAttributes(attribute.String("centinel.result.file", name))
	s.log.DebugContext(ctx, "result stored", "file", name)

	return name, nil
}

// ensureResultsDir recreates a missing results directory. Registration should
// have made it; if it is gone the client still gets to upload.
func (s *Store) ensureResultsDir(ctx context.Context, dir string) error {
	info, err := os.Stat(dir)

	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("results path for client is not a directory")
		}
		return nil
	}

	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat results dir: %w", err)
	}

	s.log.WarnContext(ctx, "results directory missing, recreating")
	s.prom.ObserveResultDirRepaired()

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("repair results dir: %w", err)
	}
	return nil
}

// ListResults returns every visible result of username keyed by file stem.
// Files that do not hold valid JSON are skipped with a warning.
func (s *Store) ListResults(ctx context.Context, username string) (map[string]json.RawMessage, error) {
	dir, err := clientDir(s.resultsDir, username)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "artifacts.list_results")
	defer span.End()

	unlock := s.locks.RLock(username)
	defer unlock()

	cached, gen, ok := s.cachedResults(ctx, username)
	if ok {
		span.SetAttributes(attribute.Bool("centinel.cache_hit", true))
		return cached, nil
	}

	files, err := listVisible(dir, resultExt)
	if err != nil {
		return nil, err
	}

	results := make(map[string]json.RawMessage, len(files))

	for stem, path := range files {
		b, err := os.ReadFile(path)
		if err != nil {
			s.log.WarnContext(ctx, "could not open result file", "file", filepath.Base(path), "err", err)
			continue
		}

		if !json.Valid(b) {
			s.log.WarnContext(ctx, "skipping result file with invalid JSON", "file", filepath.Base(path))
			s.prom.ObserveResultParseError()
			continue
		}

		results[stem] = json.RawMessage(b)
	}

	span.SetAttributes(attribute.Int("centinel.results.count", len(results)))

	if payload, err := json.Marshal(results); err == nil {
		if err := s.cache.Set(ctx, username, gen, payload); err != nil {
			s.log.WarnContext(ctx, "results cache fill failed", "err", err)
		}
	}

	return results, nil
}

// cachedResults also returns the cache generation the lookup saw; a fill must
// use it so a write that lands meanwhile wins.
func (s *Store) cachedResults(ctx context.Context, username string) (map[string]json.RawMessage, uint64, bool) {
	payload, gen, ok, err := s.cache.Get(ctx, username)

	if err != nil {
		s.prom.ObserveResultsCache("error")
		s.log.WarnContext(ctx, "results cache lookup failed", "err", err)
		return nil, gen, false
	}

	if !ok {
		s.prom.ObserveResultsCache("miss")
		return nil, gen, false
	}

	var results map[string]json.RawMessage
	if err := json.Unmarshal(payload, &results); err != nil {
		s.prom.ObserveResultsCache("error")
		return nil, gen, false
	}

	s.prom.ObserveResultsCache("hit")
	return results, gen, true
}

// ListExperiments returns the sorted experiment names available to username.
func (s *Store) ListExperiments(username string) ([]string, error) {
	experiments, err := s.experiments(username)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(experiments))
	for name := range experiments {
		names = append(names, name)
	}
	sort.Strings(names)

	return names, nil
}

// FetchExperiment returns the raw content of the named experiment along with
// its on-disk file name. Unsafe names are refused before any lookup happens.
func (s *Store) FetchExperiment(username, name string) ([]byte, string, error) {
	if err := checkSegment(name); err != nil {
		return nil, "", ErrNotFound
	}

	experiments, err := s.experiments(username)
	if err != nil {
		return nil, "", err
	}

	path, ok := experiments[name]
	if !ok {
		return nil, "", ErrNotFound
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("read experiment: %w", err)
	}

	return b, filepath.Base(path), nil
}

func (s *Store) experiments(username string) (map[string]string, error) {
	dir, err := clientDir(s.experimentsDir, username)
	if err != nil {
		return nil, ErrNotFound
	}

	unlock := s.locks.RLock(username)
	defer unlock()

	return listVisible(dir, s.experimentExt)
}

// listVisible maps stem -> path for the regular files in dir ending in ext,
// skipping the reserved "_" namespace and dotfiles. A missing dir is empty.
func listVisible(dir, ext string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)

	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}

	out := make(map[string]string, len(entries))

	for _, e := range entries {
		name := e.Name()

		if !e.Type().IsRegular() {
			continue
		}
		if strings.HasPrefix(name, reservedPrefix) || strings.HasPrefix(name, ".") {
			continue
		}
		if !strings.HasSuffix(name, ext) || len(name) == len(ext) {
			continue
		}

		out[strings.TrimSuffix(name, ext)] = filepath.Join(dir, name)
	}

	return out, nil
}
