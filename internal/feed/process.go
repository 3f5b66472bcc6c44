package feed

import (
	"sync"
	"unicode/utf8"

	"vantage/internal/types"
)

// Processor post-processes fetched pages before they enter the window.
// Implementations must be pure with respect to ordering: the output holds
// the input's activities in the input's order.
type Processor interface {
	Process(activities []types.Activity) []types.Activity
}

type passthrough struct{}

func (passthrough) Process(activities []types.Activity) []types.Activity {
	return activities
}

func Passthrough() Processor {
	return passthrough{}
}

const truncationMarker = "\n[truncated]"

type truncateProcessor struct {
	maxBytes int
}

// NewTruncateProcessor clamps diff and terminal-output artifacts to
// maxBytes each, appending an elision marker. Message text is never cut.
func NewTruncateProcessor(maxBytes int) Processor {
	if maxBytes <= 0 {
		return Passthrough()
	}
	return &truncateProcessor{maxBytes: maxBytes}
}

func (p *truncateProcessor) Process(activities []types.Activity) []types.Activity {
	out := make([]types.Activity, len(activities))
	for i, act := range activities {
		act.Diff = clampUTF8(act.Diff, p.maxBytes)
		act.Output = clampUTF8(act.Output, p.maxBytes)
		out[i] = act
	}
	return out
}

func clampUTF8(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationMarker
}

type asyncRequest struct {
	activities []types.Activity
	reply      chan []types.Activity
}

// AsyncProcessor runs a wrapped Processor on a single worker goroutine so
// large-artifact truncation stays off the interactive path. One worker and
// a synchronous reply per request keep results in submission order, so the
// offload is observationally identical to running inline.
type AsyncProcessor struct {
	wrapped  Processor
	requests chan asyncRequest
	stop     sync.Once
	done     chan struct{}
}

func NewAsyncProcessor(wrapped Processor) *AsyncProcessor {
	if wrapped == nil {
		wrapped = Passthrough()
	}
	p := &AsyncProcessor{
		wrapped:  wrapped,
		requests: make(chan asyncRequest),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *AsyncProcessor) run() {
	for {
		select {
		case req := <-p.requests:
			req.reply <- p.wrapped.Process(req.activities)
		case <-p.done:
			return
		}
	}
}

func (p *AsyncProcessor) Process(activities []types.Activity) []types.Activity {
	reply := make(chan []types.Activity, 1)
	select {
	case p.requests <- asyncRequest{activities: activities, reply: reply}:
		return <-reply
	case <-p.done:
		return p.wrapped.Process(activities)
	}
}

func (p *AsyncProcessor) Close() {
	p.stop.Do(func() {
		close(p.done)
	})
}
