// Package output collects DealerRecords from workers and publishes them as
// one ordered document.
package output

import (
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/sells-group/dealer-scraper/internal/atomicfile"
	"github.com/sells-group/dealer-scraper/internal/model"
)

// Aggregator maps input index to the records of that item. Submit and
// Seed are safe for concurrent use; Flush runs after workers join.
type Aggregator struct {
	mu      sync.Mutex
	records map[int][]model.DealerRecord
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{records: make(map[int][]model.DealerRecord)}
}

// Submit stores the records of the item at inputIndex, replacing any
// earlier submission for it.
func (a *Aggregator) Submit(inputIndex int, records []model.DealerRecord) {
	recs := append([]model.DealerRecord(nil), records...)
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Rooftop.LocationIndex < recs[j].Rooftop.LocationIndex
	})
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records[inputIndex] = recs
}

// Seed loads the completed items of a checkpoint so a resumed run
// publishes them again.
func (a *Aggregator) Seed(cp *model.Checkpoint) int {
	n := 0
	for _, e := range cp.Completed {
		a.Submit(e.InputIndex, e.Records)
		n++
	}
	return n
}

// Len returns the number of items held.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

// Records returns every record ordered by input index, then location
// index.
func (a *Aggregator) Records() []model.DealerRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx := make([]int, 0, len(a.records))
	for i := range a.records {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	var out []model.DealerRecord
	for _, i := range idx {
		out = append(out, a.records[i]...)
	}
	return out
}

// Flush renders the document and publishes it at path in one swap.
func (a *Aggregator) Flush(fs afero.Fs, path string, r Renderer) error {
	recs := a.Records()
	data := []byte(r.Render(recs))
	if err := atomicfile.Write(fs, path, data); err != nil {
		return eris.Wrap(err, "output: flush")
	}
	zap.L().Info("output: published", zap.String("path", path), zap.Int("records", len(recs)))
	return nil
}
