package execution

import (
	"context"
	"log/slog"
	"time"

	"github.com/ggonzalez94/pokt-rotate/internal/logx"
	"github.com/ggonzalez94/pokt-rotate/internal/metrics"
	"github.com/ggonzalez94/pokt-rotate/internal/pokt/signer"
	"golang.org/x/sync/errgroup"
)

const DefaultChunkSize = 50

// invalidAddress stands in for the address of a key that cannot be parsed.
const invalidAddress = "invalid-key"

// ActionBuilder resolves one item into a ready-to-submit action. Prepare
// runs once per item; the returned SubmitFunc may be called many times.
type ActionBuilder interface {
	Prepare(kind ActionKind, item Item) (SubmitFunc, error)
}

// Orchestrator fans submissions out within a chunk and runs chunks one
// after the other, so at most chunkSize transactions are in flight.
type Orchestrator struct {
	builder   ActionBuilder
	executor  *Executor
	chunkSize int
	logger    *slog.Logger
	metrics   *metrics.Recorder
	now       func() time.Time
	resolve   func(signer.PrivateKey) (string, error)
}

func NewOrchestrator(builder ActionBuilder, executor *Executor, chunkSize int, logger *slog.Logger, rec *metrics.Recorder) *Orchestrator {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if logger == nil {
		logger = logx.Discard()
	}
	return &Orchestrator{
		builder:   builder,
		executor:  executor,
		chunkSize: chunkSize,
		logger:    logger,
		metrics:   rec,
		now:       time.Now,
		resolve:   signer.ResolveAddress,
	}
}

// Run processes every item of job and returns one outcome per item, in
// input order. Per-item failures are recorded, never returned.
func (o *Orchestrator) Run(ctx context.Context, job Job) Report {
	report := Report{
		RunID:     NewRunID(),
		Action:    job.Kind,
		StartedAt: o.now().UTC(),
		Outcomes:  make([]Outcome, 0, len(job.Items)),
	}
	bounds := Chunks(len(job.Items), o.chunkSize)
	for i, b := range bounds {
		chunk := job.Items[b[0]:b[1]]
		o.logger.Info("processing chunk", "action", job.Kind, "chunk", i+1, "chunks", len(bounds), "size", len(chunk))
		start := time.Now()
		report.Outcomes = append(report.Outcomes, o.runChunk(ctx, job.Kind, chunk)...)
		o.metrics.ObserveChunk(string(job.Kind), time.Since(start))
	}
	report.Chunks = len(bounds)
	report.FinishedAt = o.now().UTC()
	o.metrics.RunFinished(string(job.Kind), report.Success())
	return report
}

// runChunk waits for every item to settle. Results land by index, so the
// order does not depend on completion order.
func (o *Orchestrator) runChunk(ctx context.Context, kind ActionKind, chunk []Item) []Outcome {
	results := make([]Outcome, len(chunk))
	var g errgroup.Group
	for i, item := range chunk {
		i, item := i, item
		g.Go(func() error {
			results[i] = o.settle(ctx, kind, item)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) settle(ctx context.Context, kind ActionKind, item Item) Outcome {
	txHash, err := o.submit(ctx, kind, item)

	out := Outcome{Action: kind, Address: o.address(item.Key)}
	if kind.Paired() {
		out.NewAddress = o.address(item.NewKey)
	}
	if err != nil {
		out.Response = logx.ScrubString(err.Error())
		o.logger.Warn("action failed", "action", kind, "address", out.Address, "new_address", out.NewAddress, "error", err)
	} else {
		out.Success = true
		out.Response = txHash
		o.logger.Info("action submitted", "action", kind, "address", out.Address, "new_address", out.NewAddress, "tx_hash", txHash)
	}
	o.metrics.Outcome(string(kind), out.Success)
	return out
}

func (o *Orchestrator) submit(ctx context.Context, kind ActionKind, item Item) (string, error) {
	submit, err := o.builder.Prepare(kind, item)
	if err != nil {
		return "", err
	}
	return o.executor.Execute(ctx, kind, o.address(item.Key), submit)
}

func (o *Orchestrator) address(key signer.PrivateKey) string {
	addr, err := o.resolve(key)
	if err != nil {
		return invalidAddress
	}
	return addr
}

// Chunks splits n items into consecutive [start, end) ranges of at most
// size items.
func Chunks(n, size int) [][2]int {
	if n <= 0 {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	out := make([][2]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}
