package recorder

import (
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/nightsound/nightsound-go/internal/audiocore"
	"github.com/nightsound/nightsound-go/internal/detection"
	"github.com/nightsound/nightsound-go/internal/logger"
	"github.com/nightsound/nightsound-go/internal/observability/metrics"
	"github.com/nightsound/nightsound-go/internal/snippet"
)

const (
	warnInterval = 10 * time.Second
	warnBurst    = 3
)

// pipeline is the per-session capture path. It is owned by one goroutine.
type pipeline struct {
	r        *Recorder
	analyzer *detection.Analyzer
	gate     *detection.Gate
	writer   *snippet.Writer
	frameDur time.Duration

	lastEnd     time.Time
	lastDropped uint64

	limiter    *rate.Limiter
	suppressed int
}

func newPipeline(r *Recorder) (*pipeline, error) {
	analyzer, err := detection.NewAnalyzer(r.config.FrameSize)
	if err != nil {
		return nil, err
	}
	gate, err := detection.NewGate(r.config.Detection)
	if err != nil {
		return nil, err
	}
	format := r.source.Format()
	writer, err := snippet.NewWriter(r.sink, snippet.WriterConfig{
		SampleRate: format.SampleRate,
		PreRoll:    r.config.PreRoll,
		RMSValue:   r.config.RMSValue,
	})
	if err != nil {
		return nil, err
	}
	return &pipeline{
		r:        r,
		analyzer: analyzer,
		gate:     gate,
		writer:   writer,
		frameDur: format.FrameDuration(r.config.FrameSize),
		limiter:  rate.NewLimiter(rate.Every(warnInterval), warnBurst),
	}, nil
}

// run consumes frames until the channel closes or stopped is signalled,
// then processes whatever is still queued and flushes the gate.
func (p *pipeline) run(frames <-chan audiocore.Frame, stopped <-chan struct{}) {
	defer p.finish()
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return
			}
			p.process(f)
		case <-stopped:
			for {
				select {
				case f, ok := <-frames:
					if !ok {
						return
					}
					p.process(f)
				default:
					return
				}
			}
		}
	}
}

func (p *pipeline) process(f audiocore.Frame) {
	r := p.r
	p.trackDropped()

	rms, err := p.analyzer.Analyze(f.Samples)
	if err != nil {
		r.invalid.Add(1)
		r.metrics.RecordFrame(metrics.FrameInvalid)
		p.warn("invalid frame", err, logger.Uint64("seq", f.Seq))
		return
	}
	r.processed.Add(1)
	r.metrics.RecordFrame(metrics.FrameProcessed)

	db := detection.ToDecibels(rms)
	r.levelBits.Store(math.Float64bits(db))
	r.metrics.SetLevel(db)

	p.lastEnd = f.Timestamp.Add(p.frameDur)
	ev := p.gate.Update(f.Timestamp, rms)
	p.handle(f, ev)
}

func (p *pipeline) handle(f audiocore.Frame, ev detection.Event) {
	r := p.r
	if ev.Type != detection.EventNone {
		r.metrics.RecordEvent(ev.Type.String())
		r.capturing.Store(ev.Type == detection.EventStarted)
		r.log.Debug("gate event",
			logger.String("event", ev.Type.String()),
			logger.Time("start", ev.StartTs),
			logger.Bool("forced", ev.Forced))
	}

	desc, err := p.writer.Handle(f, ev)
	if err != nil {
		r.writeFailures.Add(1)
		r.metrics.RecordWriteFailure()
		p.warn("snippet write failed", err)
	}
	if desc != nil {
		r.recordSnippet(desc)
	}
}

// finish closes an event still open at stop and releases the writer.
func (p *pipeline) finish() {
	if !p.lastEnd.IsZero() {
		ev := p.gate.Flush(p.lastEnd)
		if ev.Type != detection.EventNone {
			p.handle(audiocore.Frame{Timestamp: p.lastEnd}, ev)
		}
	}
	if err := p.writer.Close(); err != nil {
		p.warn("failed to discard open snippet", err)
	}
	p.trackDropped()
	p.r.capturing.Store(false)
}

func (p *pipeline) trackDropped() {
	total := p.r.source.Dropped()
	if total > p.lastDropped {
		delta := total - p.lastDropped
		p.lastDropped = total
		p.r.metrics.AddDropped(delta)
		p.warn("frames dropped", nil, logger.Uint64("dropped", delta), logger.Uint64("total", total))
	}
}

// warn logs at most warnBurst messages per warnInterval and reports how
// many were suppressed in between.
func (p *pipeline) warn(msg string, err error, fields ...logger.Field) {
	if !p.limiter.Allow() {
		p.suppressed++
		return
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if p.suppressed > 0 {
		fields = append(fields, logger.Int("suppressed", p.suppressed))
		p.suppressed = 0
	}
	p.r.log.Warn(msg, fields...)
}
