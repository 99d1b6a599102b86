package flow

import (
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/hirak99/video-summarizer/log"
)

// GraphTask is one independent unit of work submitted to
// RunGraphsConcurrently: typically a closure over a *ProcessGraph calling
// RunUpto or ProcessBatch. Nothing about the engine's traversal is itself
// made concurrent (spec.md §5 only allows running separate graphs
// concurrently, never parallel node evaluation within one graph); this is
// purely a convenience for fanning out independent graphs.
type GraphTask func() (any, error)

type graphTaskParam struct {
	idx     int
	task    GraphTask
	results []any
	errs    []error
	wg      *sync.WaitGroup
}

func (p *graphTaskParam) reset() {
	p.idx = 0
	p.task = nil
	p.results = nil
	p.errs = nil
	p.wg = nil
}

var graphTaskParamPool = &sync.Pool{
	New: func() any { return new(graphTaskParam) },
}

// RunGraphsConcurrently runs every task through a bounded worker pool of the
// given size, and returns one result/error pair per task, in task order.
// Grounded on evaluation/service/local/pool.go's ants.PoolWithFunc +
// sync.WaitGroup + sync.Pool-recycled-param pattern.
func RunGraphsConcurrently(tasks []GraphTask, poolSize int) ([]any, []error) {
	if len(tasks) == 0 {
		return nil, nil
	}
	if poolSize <= 0 {
		poolSize = len(tasks)
	}

	results := make([]any, len(tasks))
	errs := make([]error, len(tasks))

	pool, err := ants.NewPoolWithFunc(poolSize, func(args any) {
		param, ok := args.(*graphTaskParam)
		if !ok {
			panic("graph task pool args type error")
		}
		wg := param.wg
		defer func() {
			wg.Done()
			param.reset()
			graphTaskParamPool.Put(param)
		}()
		result, err := param.task()
		param.results[param.idx] = result
		param.errs[param.idx] = err
	})
	if err != nil {
		return nil, []error{fmt.Errorf("create graph task pool: %w", err)}
	}
	defer pool.Release()

	var wg sync.WaitGroup
	wg.Add(len(tasks))
	for i, task := range tasks {
		param := graphTaskParamPool.Get().(*graphTaskParam)
		param.idx = i
		param.task = task
		param.results = results
		param.errs = errs
		param.wg = &wg
		if err := pool.Invoke(param); err != nil {
			log.Errorf("Failed to submit graph task %d: %v", i, err)
			results[i] = nil
			errs[i] = fmt.Errorf("submit graph task %d: %w", i, err)
			wg.Done()
			param.reset()
			graphTaskParamPool.Put(param)
		}
	}
	wg.Wait()

	return results, errs
}
