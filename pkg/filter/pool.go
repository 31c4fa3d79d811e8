package filter

import (
	"sync"

	"github.com/policydelta/policydelta/pkg/node"
)

// defaultBatchWorkers bounds the pool when the caller passes 0.
const defaultBatchWorkers = 4

// FilterBatch applies the combined property-level filter to a batch of
// independent objects using a fixed-size worker pool. Filtering is
// side-effect free, so the only synchronization is result collection;
// results arrive in no particular order.
func (e *Engine) FilterBatch(objects []*node.Node, workers int) []*node.Node {
	if len(objects) == 0 {
		return nil
	}
	if workers <= 0 {
		workers = defaultBatchWorkers
	}
	if workers > len(objects) {
		workers = len(objects)
	}

	jobs := make(chan *node.Node, len(objects))
	results := make(chan *node.Node, len(objects))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for obj := range jobs {
				results <- e.Apply(obj)
			}
		}()
	}

	for _, obj := range objects {
		jobs <- obj
	}
	close(jobs)
	wg.Wait()
	close(results)

	out := make([]*node.Node, 0, len(objects))
	for r := range results {
		out = append(out, r)
	}
	return out
}
