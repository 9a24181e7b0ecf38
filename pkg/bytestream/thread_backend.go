package bytestream

import (
	"sync"
	"sync/atomic"

	"parafs/pkg/perr"
)

// ThreadBackend emulates async I/O with a fixed pool of goroutines doing
// blocking pread/pwrite, the way dbpf-null-aio.c emulates AIO with a
// thread pool on platforms without real kernel AIO support. It is the
// default backend (config: async_io.backend = "thread").
type ThreadBackend struct {
	mu        sync.Mutex
	completed []Completion
	inFlight  map[int64]chan struct{}
	nextToken int64
	sem       chan struct{}
	wg        sync.WaitGroup
}

// NewThreadBackend builds a ThreadBackend with at most queueDepth
// concurrent in-flight transfers.
func NewThreadBackend(queueDepth int) *ThreadBackend {
	if queueDepth < 1 {
		queueDepth = 1
	}
	return &ThreadBackend{
		inFlight: make(map[int64]chan struct{}),
		sem:      make(chan struct{}, queueDepth),
	}
}

func (b *ThreadBackend) Submit(req *Request) (int64, error) {
	if err := req.SG.Validate(); err != nil {
		return 0, err
	}
	token := atomic.AddInt64(&b.nextToken, 1)
	cancelCh := make(chan struct{})

	b.mu.Lock()
	b.inFlight[token] = cancelCh
	b.mu.Unlock()

	b.sem <- struct{}{}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() { <-b.sem }()

		var total int64
		err := req.SG.Walk(func(buf []byte, streamOffset int64) error {
			select {
			case <-cancelCh:
				return perr.New("bytestream.thread", perr.Canceled, "transfer canceled")
			default:
			}
			var n int
			var ioErr error
			if req.Kind == OpRead {
				n, ioErr = req.File.ReadAt(buf, streamOffset)
			} else {
				n, ioErr = req.File.WriteAt(buf, streamOffset)
			}
			total += int64(n)
			return ioErr
		})
		b.mu.Lock()
		delete(b.inFlight, token)
		b.completed = append(b.completed, Completion{Token: token, Bytes: total, Err: err})
		b.mu.Unlock()
	}()
	return token, nil
}

func (b *ThreadBackend) Poll() []Completion {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.completed) == 0 {
		return nil
	}
	out := b.completed
	b.completed = nil
	return out
}

func (b *ThreadBackend) Cancel(token int64) error {
	b.mu.Lock()
	ch, ok := b.inFlight[token]
	b.mu.Unlock()
	if !ok {
		return perr.New("bytestream.thread", perr.NotFound, "no in-flight transfer with that token")
	}
	close(ch)
	return nil
}

// Suspend blocks until every currently in-flight transfer has completed.
func (b *ThreadBackend) Suspend() error {
	b.wg.Wait()
	return nil
}

func (b *ThreadBackend) Close() error {
	return b.Suspend()
}
