// Package testutil holds helpers shared by tests across packages.
package testutil

import (
	"errors"
	"sync"

	dErrors "enrollment/pkg/domain-errors"
)

// ConcurrentResult tallies the outcomes of RunConcurrent. Codes counts domain errors by
// code; Other collects everything else.
type ConcurrentResult struct {
	Successes int
	Codes     map[dErrors.Code]int
	Other     []error
}

// Total returns the number of calls made.
func (r *ConcurrentResult) Total() int {
	n := r.Successes + len(r.Other)
	for _, c := range r.Codes {
		n += c
	}
	return n
}

// RunConcurrent calls fn from n goroutines released together and waits for all of them.
func RunConcurrent(n int, fn func(idx int) error) *ConcurrentResult {
	res := &ConcurrentResult{Codes: make(map[dErrors.Code]int)}
	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		start = make(chan struct{})
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := fn(i)

			mu.Lock()
			defer mu.Unlock()
			var derr *dErrors.Error
			switch {
			case err == nil:
				res.Successes++
			case errors.As(err, &derr):
				res.Codes[derr.Code]++
			default:
				res.Other = append(res.Other, err)
			}
		}()
	}
	close(start)
	wg.Wait()
	return res
}
