package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ggonzalez94/pokt-rotate/internal/pokt/signer"
)

// fakeChain succeeds for every key except those listed in fail, and counts
// submissions per key.
type fakeChain struct {
	mu         sync.Mutex
	fail       map[string]bool
	prepareErr map[string]error
	calls      map[string]int
	onSubmit   func(item Item) error
}

func newFakeChain() *fakeChain {
	return &fakeChain{fail: map[string]bool{}, prepareErr: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeChain) Prepare(kind ActionKind, item Item) (SubmitFunc, error) {
	if err := f.prepareErr[item.Key.Reveal()]; err != nil {
		return nil, err
	}
	return func(ctx context.Context) (string, error) {
		f.mu.Lock()
		f.calls[item.Key.Reveal()]++
		f.mu.Unlock()
		if f.onSubmit != nil {
			if err := f.onSubmit(item); err != nil {
				return "", err
			}
		}
		if f.fail[item.Key.Reveal()] {
			return "", fmt.Errorf("%s %s rejected", kind, item.Key.Reveal())
		}
		return "tx-" + item.Key.Reveal(), nil
	}, nil
}

func (f *fakeChain) callsFor(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func newTestOrchestrator(chain ActionBuilder, chunkSize int) *Orchestrator {
	o := NewOrchestrator(chain, NewExecutor(DefaultMaxAttempts, nil, nil), chunkSize, nil, nil)
	o.resolve = func(k signer.PrivateKey) (string, error) { return "addr-" + k.Reveal(), nil }
	return o
}

func keysOf(names ...string) []signer.PrivateKey {
	out := make([]signer.PrivateKey, 0, len(names))
	for _, n := range names {
		out = append(out, signer.PrivateKey(n))
	}
	return out
}

func TestChunks(t *testing.T) {
	cases := []struct {
		n, size int
		want    [][2]int
	}{
		{0, 50, nil},
		{3, 2, [][2]int{{0, 2}, {2, 3}}},
		{50, 50, [][2]int{{0, 50}}},
		{51, 50, [][2]int{{0, 50}, {50, 51}}},
		{4, 0, [][2]int{{0, 4}}},
	}
	for _, tc := range cases {
		got := Chunks(tc.n, tc.size)
		if fmt.Sprint(got) != fmt.Sprint(tc.want) {
			t.Fatalf("Chunks(%d, %d) = %v, want %v", tc.n, tc.size, got, tc.want)
		}
	}
}

func TestRunPreservesOrderAndCount(t *testing.T) {
	for _, n := range []int{0, 1, 49, 50, 51, 100, 137} {
		for _, size := range []int{1, 7, 50} {
			names := make([]string, n)
			for i := range names {
				names[i] = fmt.Sprintf("k%03d", i)
			}
			report := newTestOrchestrator(newFakeChain(), size).Run(context.Background(), NewJob(ActionUnstake, keysOf(names...)))

			wantChunks := (n + size - 1) / size
			if report.Chunks != wantChunks {
				t.Fatalf("n=%d size=%d: expected %d chunks, got %d", n, size, wantChunks, report.Chunks)
			}
			if len(report.Outcomes) != n {
				t.Fatalf("n=%d size=%d: expected %d outcomes, got %d", n, size, n, len(report.Outcomes))
			}
			for i, o := range report.Outcomes {
				if o.Address != "addr-"+names[i] || o.Response != "tx-"+names[i] {
					t.Fatalf("n=%d size=%d: outcome %d out of order: %#v", n, size, i, o)
				}
			}
			if !report.Success() {
				t.Fatalf("n=%d size=%d: expected success", n, size)
			}
		}
	}
}

func TestRunTransferScenarioWithPartialFailure(t *testing.T) {
	chain := newFakeChain()
	chain.fail["C"] = true

	job, err := NewTransferJob(keysOf("A", "B", "C"), keysOf("X", "Y", "Z"))
	if err != nil {
		t.Fatalf("NewTransferJob failed: %v", err)
	}
	report := newTestOrchestrator(chain, 2).Run(context.Background(), job)

	if report.Chunks != 2 {
		t.Fatalf("expected chunks [[A,B],[C]], got %d chunks", report.Chunks)
	}
	want := []struct {
		old, new string
		success  bool
	}{{"A", "X", true}, {"B", "Y", true}, {"C", "Z", false}}
	if len(report.Outcomes) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(report.Outcomes))
	}
	for i, w := range want {
		o := report.Outcomes[i]
		if o.Address != "addr-"+w.old || o.NewAddress != "addr-"+w.new || o.Success != w.success {
			t.Fatalf("row %d: unexpected outcome %#v", i, o)
		}
	}
	if report.Success() {
		t.Fatal("expected overall batch result to be failure")
	}
	if report.Failed() != 1 {
		t.Fatalf("expected one failure, got %d", report.Failed())
	}
	if got := chain.callsFor("C"); got != DefaultMaxAttempts {
		t.Fatalf("expected C to be retried %d times, got %d", DefaultMaxAttempts, got)
	}
	if got := chain.callsFor("A"); got != 1 {
		t.Fatalf("expected A to be submitted once, got %d", got)
	}
}

func TestRunPrepareFailureBecomesOutcome(t *testing.T) {
	chain := newFakeChain()
	chain.prepareErr["B"] = errors.New("load app key: bad hex")

	report := newTestOrchestrator(chain, 50).Run(context.Background(), NewJob(ActionStake, keysOf("A", "B")))
	if len(report.Outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(report.Outcomes))
	}
	if report.Outcomes[1].Success || report.Outcomes[1].Response != "load app key: bad hex" {
		t.Fatalf("unexpected outcome %#v", report.Outcomes[1])
	}
	if chain.callsFor("B") != 0 {
		t.Fatal("expected no submission for an item that failed to prepare")
	}
}

func TestRunInvalidKeyAddressPlaceholder(t *testing.T) {
	chain := newFakeChain()
	o := NewOrchestrator(chain, NewExecutor(1, nil, nil), 10, nil, nil)
	report := o.Run(context.Background(), NewJob(ActionUnstake, keysOf("not-a-key")))
	if report.Outcomes[0].Address != invalidAddress {
		t.Fatalf("expected placeholder address, got %q", report.Outcomes[0].Address)
	}
}

func TestRunChunkSubmitsConcurrentlyAndDrainsBeforeNext(t *testing.T) {
	const size = 3
	chain := newFakeChain()
	started := make(chan string, 6)
	release := make(chan struct{})
	chain.onSubmit = func(item Item) error {
		started <- item.Key.Reveal()
		select {
		case <-release:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("chunk members did not run concurrently")
		}
	}

	done := make(chan Report, 1)
	go func() {
		done <- newTestOrchestrator(chain, size).Run(context.Background(), NewJob(ActionUnstake, keysOf("a", "b", "c", "d", "e", "f")))
	}()

	firstChunk := map[string]bool{}
	for i := 0; i < size; i++ {
		select {
		case k := <-started:
			firstChunk[k] = true
		case <-time.After(time.Second):
			t.Fatalf("only %d of %d chunk members started", i, size)
		}
	}
	select {
	case k := <-started:
		t.Fatalf("second chunk item %s started before the first chunk settled", k)
	case <-time.After(50 * time.Millisecond):
	}
	for _, k := range []string{"a", "b", "c"} {
		if !firstChunk[k] {
			t.Fatalf("expected %s in the first chunk", k)
		}
	}
	close(release)

	select {
	case report := <-done:
		if !report.Success() {
			t.Fatalf("expected success, got %#v", report.Outcomes)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run did not finish")
	}
}

// Re-running after a partial failure resubmits items that already
// succeeded. There is no exactly-once guarantee; the chain decides how a
// duplicate behaves.
func TestRerunResubmitsSucceededItems(t *testing.T) {
	chain := newFakeChain()
	chain.fail["C"] = true
	job, err := NewTransferJob(keysOf("A", "B", "C"), keysOf("X", "Y", "Z"))
	if err != nil {
		t.Fatalf("NewTransferJob failed: %v", err)
	}
	o := newTestOrchestrator(chain, 2)

	first := o.Run(context.Background(), job)
	if first.Success() {
		t.Fatal("expected first run to fail partially")
	}
	delete(chain.fail, "C")
	second := o.Run(context.Background(), job)
	if !second.Success() {
		t.Fatal("expected second run to succeed")
	}
	if got := chain.callsFor("A"); got != 2 {
		t.Fatalf("expected A to be submitted again on rerun, got %d submissions", got)
	}
	if first.RunID == second.RunID {
		t.Fatal("expected distinct run ids")
	}
}

func TestNewTransferJobCountMismatch(t *testing.T) {
	if _, err := NewTransferJob(keysOf("A", "B"), keysOf("X")); err == nil {
		t.Fatal("expected count mismatch")
	}
}
