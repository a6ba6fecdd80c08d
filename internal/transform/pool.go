package transform

import (
	"context"
	"sync"
)

// RunAll transforms every input against destinations. When t.Workers > 1, a
// fixed pool of goroutines drains a shared job channel; with Workers <= 1
// it runs inline on the calling goroutine. Results preserve input order
// regardless of worker count, since each job writes to its own output slot.
func (t *Transformer) RunAll(ctx context.Context, inputs []Input, destinations []Destination) []Result {
	results := make([]Result, len(inputs))

	if t.Workers <= 1 {
		for i, in := range inputs {
			results[i] = t.Transform(ctx, in, destinations)
		}
		return results
	}

	type job struct {
		index int
		input Input
	}

	jobs := make(chan job, t.Workers*2)
	var wg sync.WaitGroup
	wg.Add(t.Workers)
	for range t.Workers {
		go func() {
			defer wg.Done()
			for j := range jobs {
				results[j.index] = t.Transform(ctx, j.input, destinations)
			}
		}()
	}

	for i, in := range inputs {
		select {
		case jobs <- job{index: i, input: in}:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()

	return results
}
