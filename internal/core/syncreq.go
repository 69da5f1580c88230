package core

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cloudfs/cloudsh/internal/provider"
	"github.com/cloudfs/cloudsh/internal/util"
)

// Outcome is the copied result of one finished request.
type Outcome struct {
	Request  provider.Request
	Error    provider.Error
	TimedOut bool
}

// OK reports whether the request completed successfully.
func (o Outcome) OK() bool {
	return !o.TimedOut && o.Error.IsOK()
}

// SyncRequest turns one asynchronous store request into a blocking wait.
//
// Pass it as the request's listener, then call Await once. The completion
// copies the store's request and error before signalling, so a late
// completion after a timed-out Await only writes into this instance.
// A SyncRequest serves exactly one request and is never reused.
type SyncRequest struct {
	done     chan struct{}
	req      provider.Request
	err      provider.Error
	finished atomic.Bool
	awaited  atomic.Bool
}

// NewSyncRequest returns a fresh adapter with no permit available.
func NewSyncRequest() *SyncRequest {
	return &SyncRequest{done: make(chan struct{}, 1)}
}

// OnRequestFinish implements provider.RequestListener.
func (s *SyncRequest) OnRequestFinish(req *provider.Request, err *provider.Error) {
	if !s.finished.CompareAndSwap(false, true) {
		logger := util.GetLogger("syncreq")
		logger.Warn().Str("tag", req.Tag).Msg("Ignoring second completion for the same request")
		return
	}
	if r := req.Copy(); r != nil {
		s.req = *r
	}
	if e := err.Copy(); e != nil {
		s.err = *e
	}
	s.done <- struct{}{}
}

// Await blocks until the request finishes, timeout elapses, or ctx is done.
// A timeout <= 0 waits indefinitely. A timed-out request is not cancelled.
func (s *SyncRequest) Await(ctx context.Context, timeout time.Duration) (Outcome, error) {
	if !s.awaited.CompareAndSwap(false, true) {
		return Outcome{}, ErrAlreadyAwaited
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-s.done:
		return Outcome{Request: s.req, Error: s.err}, nil
	case <-expired:
		return Outcome{TimedOut: true}, nil
	case <-ctx.Done():
		return Outcome{TimedOut: true}, nil
	}
}

// Finished reports whether the completion has been delivered.
func (s *SyncRequest) Finished() bool {
	return s.finished.Load()
}
