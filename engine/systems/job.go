package systems

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/prism/engine/core"
)

/**
 * @brief A unit of work run on a worker goroutine. OnComplete and OnFailure
 * run later on the thread that calls JobSystem.Update, so they may touch the
 * renderer.
 */
type JobTask struct {
	Name       string
	Run        func() (interface{}, error)
	OnComplete func(result interface{})
	OnFailure  func(err error)
}

type jobResult struct {
	task   JobTask
	result interface{}
	err    error
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup

	mu       sync.Mutex
	finished []jobResult
	pending  int

	// held for reading while sending so Shutdown never closes a queue
	// that a Submit is writing to
	sendMu sync.RWMutex
	closed bool
}

var ErrNoWorkers = errors.New("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = errors.New("attempting to create worker pool with a negative channel size")
var ErrJobSystemClosed = errors.New("job system is shut down")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan JobTask, channelSize),
	}
	js.start()
	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				result, err := job.Run()
				if err != nil {
					core.LogError("job '%s' failed: %s", job.Name, err)
				}
				js.mu.Lock()
				js.finished = append(js.finished, jobResult{task: job, result: result, err: err})
				js.mu.Unlock()
			}
		}()
	}
}

/**
 * @brief Shuts the job system down after the queued jobs ran. Callbacks of
 * jobs that finished but were never collected by Update are dropped.
 */
func (js *JobSystem) Shutdown() error {
	js.sendMu.Lock()
	if js.closed {
		js.sendMu.Unlock()
		return nil
	}
	js.closed = true
	close(js.jobQueue)
	js.sendMu.Unlock()

	js.wg.Wait()
	return nil
}

/**
 * @brief Runs the callbacks of finished jobs. Should happen once an update
 * cycle, on the main thread.
 */
func (js *JobSystem) Update() {
	js.mu.Lock()
	finished := js.finished
	js.finished = nil
	js.pending -= len(finished)
	js.mu.Unlock()

	for _, f := range finished {
		if f.err != nil {
			if f.task.OnFailure != nil {
				f.task.OnFailure(f.err)
			}
			continue
		}
		if f.task.OnComplete != nil {
			f.task.OnComplete(f.result)
		}
	}
}

// Pending is the number of submitted jobs whose callbacks have not run yet.
func (js *JobSystem) Pending() int {
	js.mu.Lock()
	defer js.mu.Unlock()
	return js.pending
}

/**
 * @brief Submits the provided job to be queued for execution. Blocks while
 * the queue is full.
 */
func (js *JobSystem) Submit(jt JobTask) error {
	js.sendMu.RLock()
	defer js.sendMu.RUnlock()
	if js.closed {
		return ErrJobSystemClosed
	}
	js.mu.Lock()
	js.pending++
	js.mu.Unlock()

	js.jobQueue <- jt
	return nil
}
