// Package input collects the URLs of a run from flags, text files and CSV
// files, deduplicates them and numbers them in first-seen order.
package input

import (
	"bufio"
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/sells-group/dealer-scraper/internal/config"
	"github.com/sells-group/dealer-scraper/internal/model"
	"github.com/sells-group/dealer-scraper/internal/normalize"
)

// ErrNoURLs is returned when every source is empty.
var ErrNoURLs = eris.New("input: no urls provided")

// DefaultColumn is the CSV column read when none is configured.
const DefaultColumn = "url"

// Options names the sources of a run. URLs come first, then URLFiles and
// CSVFiles in the order given.
type Options struct {
	URLs      []string
	URLFiles  []string
	CSVFiles  []string
	CSVColumn string
}

// FromConfig returns the sources listed under input in the config file.
func FromConfig(cfg config.InputConfig) Options {
	opts := Options{URLs: cfg.URLs, CSVColumn: cfg.CSVColumn}
	if cfg.URLFile != "" {
		opts.URLFiles = []string{cfg.URLFile}
	}
	if cfg.CSVFile != "" {
		opts.CSVFiles = []string{cfg.CSVFile}
	}
	return opts
}

// Empty reports whether no source is named.
func (o Options) Empty() bool {
	return len(o.URLs) == 0 && len(o.URLFiles) == 0 && len(o.CSVFiles) == 0
}

// Rejected is an input line that is not a usable URL.
type Rejected struct {
	Source string
	Value  string
	Reason string
}

// Result is the deduplicated input of a run.
type Result struct {
	Items      []model.WorkItem
	Sources    []string
	Duplicates int
	Rejected   []Rejected
}

// Summary is the one-line description printed before a run.
func (r Result) Summary() string {
	return fmt.Sprintf("loaded %d unique url(s) from %d source(s): %s",
		len(r.Items), len(r.Sources), strings.Join(r.Sources, ", "))
}

// collector dedupes on normalize.InputKey and keeps first-seen order.
type collector struct {
	seen map[string]bool
	res  Result
}

func (c *collector) add(raw, source string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	fetchURL, err := normalize.URL(raw)
	if err != nil {
		c.res.Rejected = append(c.res.Rejected, Rejected{Source: source, Value: raw, Reason: err.Error()})
		zap.L().Warn("input: skipping invalid url", zap.String("source", source), zap.String("value", raw), zap.Error(err))
		return
	}
	// Plain-http inputs are fetched as given.
	if strings.HasPrefix(strings.ToLower(raw), "http://") {
		fetchURL = "http://" + strings.TrimPrefix(fetchURL, "https://")
	}
	key := normalize.InputKey(raw)
	if c.seen[key] {
		c.res.Duplicates++
		return
	}
	c.seen[key] = true
	c.res.Items = append(c.res.Items, model.NewWorkItem(fetchURL, key, len(c.res.Items)))
	if !slices.Contains(c.res.Sources, source) {
		c.res.Sources = append(c.res.Sources, source)
	}
}

// Load reads every source in opts. A missing or unreadable file is an
// error; a line that is not a URL is skipped and reported in Rejected.
func Load(ctx context.Context, fs afero.Fs, opts Options) (Result, error) {
	c := &collector{seen: make(map[string]bool)}
	for _, u := range opts.URLs {
		for _, f := range strings.Fields(u) {
			c.add(f, "flag")
		}
	}
	for _, path := range opts.URLFiles {
		if err := c.readText(fs, path); err != nil {
			return Result{}, err
		}
	}
	column := opts.CSVColumn
	if column == "" {
		column = DefaultColumn
	}
	for _, path := range opts.CSVFiles {
		if err := c.readCSV(ctx, fs, path, column); err != nil {
			return Result{}, err
		}
	}
	if len(c.res.Items) == 0 {
		return c.res, ErrNoURLs
	}
	return c.res, nil
}

// readText reads one URL per line; blank lines and lines starting with #
// are skipped.
func (c *collector) readText(fs afero.Fs, path string) error {
	f, err := fs.Open(path)
	if err != nil {
		return eris.Wrapf(err, "input: open url file %s", path)
	}
	defer f.Close() //nolint:errcheck

	source := "file:" + path
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		c.add(line, source)
	}
	return eris.Wrapf(sc.Err(), "input: read url file %s", path)
}

// readCSV reads the named column of a CSV (or, by extension, TSV) file with
// a header row.
func (c *collector) readCSV(ctx context.Context, fs afero.Fs, path, column string) error {
	f, err := fs.Open(path)
	if err != nil {
		return eris.Wrapf(err, "input: open csv %s", path)
	}
	defer f.Close() //nolint:errcheck

	opts := csvOptions{Comment: '#'}
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		opts.Delimiter = '\t'
	}
	headerCh := make(chan []string, 1)
	opts.HeaderCh = headerCh
	rows, errs := streamCSV(ctx, f, opts)

	source := "csv:" + path
	col := -1
	for row := range rows {
		if col < 0 {
			if col, err = headerColumn(<-headerCh, column, path); err != nil {
				// Drain so the reader goroutine can exit.
				for range rows {
				}
				return err
			}
		}
		if col < len(row) {
			c.add(row[col], source)
		}
	}
	if err := <-errs; err != nil {
		return eris.Wrapf(err, "input: csv %s", path)
	}
	if col < 0 {
		// Header only, or an empty file.
		select {
		case header := <-headerCh:
			_, err = headerColumn(header, column, path)
			return err
		default:
		}
	}
	return nil
}

func headerColumn(header []string, name, path string) (int, error) {
	for i, h := range header {
		if strings.EqualFold(h, name) {
			return i, nil
		}
	}
	return -1, eris.Errorf("input: column %q not found in %s; available columns: %s",
		name, path, strings.Join(header, ", "))
}
