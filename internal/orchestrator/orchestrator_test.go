package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/framefold/groupshot/internal/gateway"
	"github.com/framefold/groupshot/internal/models"
	"github.com/framefold/groupshot/internal/prompt"
)

type fakeRewriter struct {
	mu    sync.Mutex
	calls int
	err   error
	block chan struct{}
	// ignoreCtx makes a blocked rewrite wait out the block and return a
	// real result even after its context is cancelled, simulating a
	// response already on the wire when the caller gave up.
	ignoreCtx bool
}

func (f *fakeRewriter) RewritePrompt(ctx context.Context, scene string) (string, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	ignoreCtx := f.ignoreCtx
	err := f.err
	f.mu.Unlock()

	if block != nil {
		if ignoreCtx {
			<-block
		} else {
			select {
			case <-block:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	if err != nil {
		return "", err
	}
	return "optimized: " + scene, nil
}

func (f *fakeRewriter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type genCall struct {
	prompt string
	model  string
	refs   int
}

type fakeGenerator struct {
	mu       sync.Mutex
	calls    []genCall
	inFlight int
	maxSeen  int
	block    chan struct{}
	// ignoreCtx makes blocked calls wait out the block and return a real
	// result even after their context is cancelled, simulating a response
	// that was already on the wire when the caller gave up.
	ignoreCtx bool
	respond   func(n int, call genCall) (models.EncodedImage, error)
}

func (f *fakeGenerator) GenerateImage(ctx context.Context, refs []models.EncodedImage, p string, model string) (models.EncodedImage, error) {
	call := genCall{prompt: p, model: model, refs: len(refs)}

	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, call)
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	block := f.block
	ignoreCtx := f.ignoreCtx
	respond := f.respond
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if block != nil {
		if ignoreCtx {
			<-block
		} else {
			select {
			case <-block:
			case <-ctx.Done():
				return models.EncodedImage{}, ctx.Err()
			}
		}
	}
	if !ignoreCtx && ctx.Err() != nil {
		return models.EncodedImage{}, ctx.Err()
	}
	if respond != nil {
		return respond(n, call)
	}
	return models.EncodedImage{Data: []byte{0xFF, byte(n)}, MIMEType: "image/png"}, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeGenerator) callAt(i int) genCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func (f *fakeGenerator) maxConcurrency() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxSeen
}

func (f *fakeGenerator) setRespond(fn func(n int, call genCall) (models.EncodedImage, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.respond = fn
}

var testModels = ModelPair{Default: "image-pro", Fallback: "image-flash"}

func testSubjects() []prompt.Subject {
	return []prompt.Subject{{Name: "Ada", Description: "round glasses", PhotoIndex: 0}}
}

func testRefs() []models.EncodedImage {
	return []models.EncodedImage{{Data: []byte{1, 2, 3}, MIMEType: "image/jpeg"}}
}

func quotaErr() error {
	return &gateway.Error{
		Kind:    gateway.KindQuotaExhausted,
		Message: "daily quota exhausted",
		Err:     &googleapi.Error{Code: 429},
	}
}

func waitIdle(t *testing.T, o *Orchestrator) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if !o.Busy() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("Orchestrator never went idle")
}

func itemStatuses(batch *models.Batch) []models.ItemStatus {
	out := make([]models.ItemStatus, 0, len(batch.Items))
	for _, item := range batch.Items {
		out = append(out, item.Status)
	}
	return out
}

func TestStartBatchPublishesPlaceholders(t *testing.T) {
	for _, count := range []int{2, 4, 8} {
		t.Run(fmt.Sprintf("count_%d", count), func(t *testing.T) {
			rw := &fakeRewriter{block: make(chan struct{})}
			gen := &fakeGenerator{}
			o := New(rw, gen, testModels, nil)

			batch, err := o.StartBatch(testRefs(), testSubjects(), "sunset beach", count)
			if err != nil {
				t.Fatalf("StartBatch failed: %v", err)
			}

			if len(batch.Items) != count {
				t.Fatalf("Expected %d placeholders, got %d", count, len(batch.Items))
			}
			for _, status := range itemStatuses(batch) {
				if status != models.StatusPending {
					t.Errorf("Expected pending placeholder, got %s", status)
				}
			}
			if !o.Busy() {
				t.Error("Expected busy flag while the rewrite is outstanding")
			}
			if gen.callCount() != 0 {
				t.Error("Expected no generate calls before the rewrite resolves")
			}

			close(rw.block)
			waitIdle(t, o)

			for _, item := range batch.Items {
				if item.Status != models.StatusSuccess {
					t.Errorf("Expected success after settle, got %s", item.Status)
				}
				if item.Result == nil || len(item.Result.Data) == 0 {
					t.Error("Expected a non-empty image payload")
				}
			}
		})
	}
}

func TestStartBatchValidation(t *testing.T) {
	tests := []struct {
		name     string
		subjects []prompt.Subject
		scene    string
		count    int
	}{
		{"no subjects", nil, "sunset beach", 2},
		{"empty scene", testSubjects(), "   ", 2},
		{"bad count", testSubjects(), "sunset beach", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rw := &fakeRewriter{}
			gen := &fakeGenerator{}
			o := New(rw, gen, testModels, nil)

			batch, err := o.StartBatch(testRefs(), tt.subjects, tt.scene, tt.count)
			if !gateway.IsValidation(err) {
				t.Fatalf("Expected a validation error, got %v", err)
			}
			if batch != nil {
				t.Error("Expected no batch on validation failure")
			}
			if rw.callCount() != 0 || gen.callCount() != 0 {
				t.Error("Expected no remote calls on validation failure")
			}
			if len(o.Snapshot()) != 0 {
				t.Error("Expected no items created on validation failure")
			}
		})
	}
}

func TestCancelBeforeOptimizeResolves(t *testing.T) {
	rw := &fakeRewriter{block: make(chan struct{})}
	gen := &fakeGenerator{}
	o := New(rw, gen, testModels, nil)

	batch, err := o.StartBatch(testRefs(), testSubjects(), "sunset beach", 4)
	if err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}

	o.CancelBatch()

	if o.Busy() {
		t.Error("Expected busy flag to clear immediately on cancel")
	}
	for _, status := range itemStatuses(batch) {
		if status != models.StatusCancelled {
			t.Errorf("Expected cancelled, got %s", status)
		}
	}

	// Let the stalled rewrite return; no generate call may ever be issued
	// and no item may leave the cancelled state.
	close(rw.block)
	time.Sleep(50 * time.Millisecond)

	if gen.callCount() != 0 {
		t.Errorf("Expected zero generate calls after cancel, got %d", gen.callCount())
	}
	for _, status := range itemStatuses(batch) {
		if status != models.StatusCancelled {
			t.Errorf("Expected item to stay cancelled, got %s", status)
		}
	}
}

func TestCancelIgnoresLateResults(t *testing.T) {
	rw := &fakeRewriter{}
	gen := &fakeGenerator{block: make(chan struct{}), ignoreCtx: true}
	o := New(rw, gen, testModels, nil)

	batch, err := o.StartBatch(testRefs(), testSubjects(), "sunset beach", 2)
	if err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}

	// Wait for both generate calls to be in flight.
	deadline := time.Now().Add(3 * time.Second)
	for gen.callCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("Generate calls never started")
		}
		time.Sleep(2 * time.Millisecond)
	}

	o.CancelBatch()
	if o.Busy() {
		t.Error("Expected busy to clear without waiting for in-flight calls")
	}

	// The calls now "succeed" on the network; their results must be moot.
	close(gen.block)
	time.Sleep(50 * time.Millisecond)

	for _, item := range batch.Items {
		if item.Status != models.StatusCancelled {
			t.Errorf("Expected cancelled despite late success, got %s", item.Status)
		}
		if item.Result != nil {
			t.Error("Expected no result on a cancelled item")
		}
	}
}

func TestCancelledBatchDoesNotClobberNewerContext(t *testing.T) {
	blockA := make(chan struct{})
	rw := &fakeRewriter{block: blockA, ignoreCtx: true}
	gen := &fakeGenerator{}
	o := New(rw, gen, testModels, nil)

	first, err := o.StartBatch(testRefs(), testSubjects(), "scene A", 2)
	if err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for rw.callCount() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("First rewrite never started")
		}
		time.Sleep(2 * time.Millisecond)
	}
	o.CancelBatch()

	// The second batch's rewrite must not stall on the first one's gate.
	rw.mu.Lock()
	rw.block = nil
	rw.mu.Unlock()

	second, err := o.StartBatch(testRefs(), testSubjects(), "scene B", 2)
	if err != nil {
		t.Fatalf("Second StartBatch failed: %v", err)
	}
	waitIdle(t, o)

	if got := o.Context().ScenePrompt; got != "scene B" {
		t.Fatalf("Expected context from the live batch, got %q", got)
	}
	callsAfterB := gen.callCount()

	// The dead batch's rewrite now returns; it must neither overwrite the
	// newer generation context nor reach fan-out.
	close(blockA)
	time.Sleep(50 * time.Millisecond)

	if got := o.Context().ScenePrompt; got != "scene B" {
		t.Errorf("Cancelled batch clobbered the generation context: got %q, want %q", got, "scene B")
	}
	if got := gen.callCount(); got != callsAfterB {
		t.Errorf("Cancelled batch issued %d generate calls after cancellation", got-callsAfterB)
	}
	for _, item := range first.Items {
		if item.Status != models.StatusCancelled {
			t.Errorf("Expected cancelled item to stay cancelled, got %s", item.Status)
		}
	}
	for _, item := range second.Items {
		if item.Status != models.StatusSuccess {
			t.Errorf("Expected live batch success, got %s", item.Status)
		}
	}

	// The dead batch's result must not have landed in the rewrite cache.
	before := rw.callCount()
	if _, err := o.StartBatch(testRefs(), testSubjects(), "scene A", 2); err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}
	waitIdle(t, o)
	if rw.callCount() != before+1 {
		t.Error("Expected a fresh rewrite after the cancelled batch's result was discarded")
	}
}

func TestCancelBatchIdempotent(t *testing.T) {
	o := New(&fakeRewriter{}, &fakeGenerator{}, testModels, nil)
	o.CancelBatch() // no active batch; must not panic or flag busy
	if o.Busy() {
		t.Error("Expected idle orchestrator to stay idle")
	}
}

func TestOptimizationCacheSingleSlot(t *testing.T) {
	rw := &fakeRewriter{}
	gen := &fakeGenerator{}
	o := New(rw, gen, testModels, nil)

	runBatch := func(scene string) {
		t.Helper()
		if _, err := o.StartBatch(testRefs(), testSubjects(), scene, 2); err != nil {
			t.Fatalf("StartBatch failed: %v", err)
		}
		waitIdle(t, o)
	}

	runBatch("sunset beach")
	runBatch("sunset beach")
	if rw.callCount() != 1 {
		t.Errorf("Expected 1 rewrite across identical batches, got %d", rw.callCount())
	}

	runBatch("mountain cabin")
	if rw.callCount() != 2 {
		t.Errorf("Expected a fresh rewrite after the prompt changed, got %d", rw.callCount())
	}

	// Single slot: returning to the first prompt rewrites again.
	runBatch("sunset beach")
	if rw.callCount() != 3 {
		t.Errorf("Expected the old entry to have been evicted, got %d calls", rw.callCount())
	}
}

func TestRewriteFailureAbortsBatch(t *testing.T) {
	rw := &fakeRewriter{err: errors.New("model exploded")}
	gen := &fakeGenerator{}
	o := New(rw, gen, testModels, nil)

	batch, err := o.StartBatch(testRefs(), testSubjects(), "sunset beach", 4)
	if err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}
	waitIdle(t, o)

	if gen.callCount() != 0 {
		t.Error("Expected no fan-out after a rewrite failure")
	}
	for _, item := range batch.Items {
		if item.Status != models.StatusError {
			t.Errorf("Expected every item errored, got %s", item.Status)
		}
		if item.ErrorMessage == "" {
			t.Error("Expected an error message on each item")
		}
	}
	if o.Context() != nil {
		t.Error("Expected no generation context after an aborted batch")
	}
}

func TestMixedQuotaOutcome(t *testing.T) {
	rw := &fakeRewriter{}
	gen := &fakeGenerator{}
	gen.setRespond(func(n int, call genCall) (models.EncodedImage, error) {
		if n == 0 {
			return models.EncodedImage{}, quotaErr()
		}
		return models.EncodedImage{Data: []byte{1}, MIMEType: "image/png"}, nil
	})
	o := New(rw, gen, testModels, nil)

	batch, err := o.StartBatch(testRefs(), testSubjects(), "sunset beach", 2)
	if err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}
	waitIdle(t, o)

	var succeeded, quotaFailed int
	for _, item := range batch.Items {
		switch item.Status {
		case models.StatusSuccess:
			succeeded++
		case models.StatusError:
			if !item.IsQuotaError {
				t.Error("Expected the failed item to carry the quota flag")
			}
			if item.ErrorMessage == "" {
				t.Error("Expected a human-readable message on the failed item")
			}
			quotaFailed++
		default:
			t.Errorf("Unexpected status %s", item.Status)
		}
	}
	if succeeded != 1 || quotaFailed != 1 {
		t.Errorf("Expected 1 success and 1 quota failure, got %d/%d", succeeded, quotaFailed)
	}
}

func failOneBatch(t *testing.T, o *Orchestrator, gen *fakeGenerator, count int, failWith error) *models.Batch {
	t.Helper()
	gen.setRespond(func(n int, call genCall) (models.EncodedImage, error) {
		return models.EncodedImage{}, failWith
	})
	batch, err := o.StartBatch(testRefs(), testSubjects(), "sunset beach", count)
	if err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}
	waitIdle(t, o)
	gen.setRespond(nil)
	return batch
}

func TestRetryUsesFallbackModelOnQuota(t *testing.T) {
	rw := &fakeRewriter{}
	gen := &fakeGenerator{}
	o := New(rw, gen, testModels, nil)

	batch := failOneBatch(t, o, gen, 2, quotaErr())
	before := gen.callCount()

	item, err := o.RetryItem(batch.Items[0].ID)
	if err != nil {
		t.Fatalf("RetryItem failed: %v", err)
	}

	retryCall := gen.callAt(before)
	if retryCall.model != testModels.Fallback {
		t.Errorf("Expected fallback model %q for quota retry, got %q", testModels.Fallback, retryCall.model)
	}
	if item.Status != models.StatusSuccess {
		t.Errorf("Expected retry success, got %s", item.Status)
	}
	if item.IsQuotaError {
		t.Error("Expected quota flag cleared after a successful retry")
	}
}

func TestRetryUsesDefaultModelOtherwise(t *testing.T) {
	rw := &fakeRewriter{}
	gen := &fakeGenerator{}
	o := New(rw, gen, testModels, nil)

	batch := failOneBatch(t, o, gen, 2, errors.New("flaky"))
	before := gen.callCount()

	if _, err := o.RetryItem(batch.Items[0].ID); err != nil {
		t.Fatalf("RetryItem failed: %v", err)
	}
	if got := gen.callAt(before).model; got != testModels.Default {
		t.Errorf("Expected default model %q, got %q", testModels.Default, got)
	}
}

func TestRetryMitigationLadder(t *testing.T) {
	rw := &fakeRewriter{}
	gen := &fakeGenerator{}
	o := New(rw, gen, testModels, nil)

	batch := failOneBatch(t, o, gen, 2, errors.New("refused"))
	itemID := batch.Items[0].ID

	// Keep the retries failing so the counter climbs.
	gen.setRespond(func(n int, call genCall) (models.EncodedImage, error) {
		return models.EncodedImage{}, errors.New("still refused")
	})

	var prompts []string
	for i := 0; i < 11; i++ {
		before := gen.callCount()
		if _, err := o.RetryItem(itemID); err != nil {
			t.Fatalf("Retry %d failed: %v", i, err)
		}
		prompts = append(prompts, gen.callAt(before).prompt)
	}

	base := o.Context().FinalPrompt
	for i, p := range prompts {
		if !strings.HasPrefix(p, base) {
			t.Fatalf("Retry %d prompt lost the assembled base", i)
		}
		want := prompt.Mitigation(i)
		if !strings.HasSuffix(p, want) {
			t.Errorf("Retry %d: expected mitigation %q as suffix", i, want)
		}
	}

	// The very first retry already skips the no-mitigation entry.
	if prompts[0] == base {
		t.Error("Expected the first retry to carry a mitigation suffix")
	}
	// Saturation: retry 4 reaches the last entry and retry 10 stays there.
	if prompt.Mitigation(4) != prompt.Mitigation(10) {
		t.Error("Expected the ladder to saturate at its last entry")
	}
	if !strings.HasSuffix(prompts[10], prompt.Mitigation(4)) {
		t.Error("Expected saturated retries to reuse the most generic mitigation")
	}
}

func TestRetryWithoutContextIsLocalError(t *testing.T) {
	gen := &fakeGenerator{}
	o := New(&fakeRewriter{}, gen, testModels, nil)

	if _, err := o.RetryItem("nope"); !gateway.IsValidation(err) {
		t.Errorf("Expected validation error, got %v", err)
	}
	if _, err := o.RetryAllFailed(); !gateway.IsValidation(err) {
		t.Errorf("Expected validation error, got %v", err)
	}
	if gen.callCount() != 0 {
		t.Error("Expected no network calls for local validation failures")
	}
}

func TestRetryRejectsTerminalStates(t *testing.T) {
	rw := &fakeRewriter{}
	gen := &fakeGenerator{}
	o := New(rw, gen, testModels, nil)

	batch, err := o.StartBatch(testRefs(), testSubjects(), "sunset beach", 2)
	if err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}
	waitIdle(t, o)

	// Successful items are terminal.
	if _, err := o.RetryItem(batch.Items[0].ID); !gateway.IsValidation(err) {
		t.Errorf("Expected validation error retrying a success, got %v", err)
	}

	// Cancelled items are terminal too.
	rw2 := &fakeRewriter{block: make(chan struct{})}
	o2 := New(rw2, gen, testModels, nil)
	b2, err := o2.StartBatch(testRefs(), testSubjects(), "dusk pier", 2)
	if err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}
	o2.CancelBatch()
	close(rw2.block)
	if _, err := o2.RetryItem(b2.Items[0].ID); !gateway.IsValidation(err) {
		t.Errorf("Expected validation error retrying a cancelled item, got %v", err)
	}
}

func TestRetryAllFailedIsSequential(t *testing.T) {
	rw := &fakeRewriter{}
	gen := &fakeGenerator{}
	o := New(rw, gen, testModels, nil)

	batch := failOneBatch(t, o, gen, 4, errors.New("flaky"))

	// Reset concurrency tracking after the (parallel) batch fan-out.
	gen.mu.Lock()
	gen.maxSeen = 0
	gen.mu.Unlock()

	retried, err := o.RetryAllFailed()
	if err != nil {
		t.Fatalf("RetryAllFailed failed: %v", err)
	}
	if retried != 4 {
		t.Errorf("Expected 4 retries, got %d", retried)
	}
	if got := gen.maxConcurrency(); got != 1 {
		t.Errorf("Expected retries strictly one at a time, saw concurrency %d", got)
	}
	for _, item := range batch.Items {
		if item.Status != models.StatusSuccess {
			t.Errorf("Expected retried item success, got %s", item.Status)
		}
	}
}

func TestRetryAllFailedCountsIssuedRetries(t *testing.T) {
	rw := &fakeRewriter{}
	gen := &fakeGenerator{}
	o := New(rw, gen, testModels, nil)

	batch := failOneBatch(t, o, gen, 2, errors.New("flaky"))
	secondID := batch.Items[1].ID
	sweepStart := gen.callCount()

	// While the sweep's first retry is in flight, the second item settles
	// through a direct retry; the sweep must skip it and not count it.
	gen.setRespond(func(n int, call genCall) (models.EncodedImage, error) {
		if n == sweepStart {
			if _, err := o.RetryItem(secondID); err != nil {
				t.Errorf("Direct retry failed: %v", err)
			}
		}
		return models.EncodedImage{Data: []byte{1}, MIMEType: "image/png"}, nil
	})

	retried, err := o.RetryAllFailed()
	if err != nil {
		t.Fatalf("RetryAllFailed failed: %v", err)
	}
	if retried != 1 {
		t.Errorf("Expected 1 issued retry, got %d", retried)
	}
	for _, item := range batch.Items {
		if item.Status != models.StatusSuccess {
			t.Errorf("Expected success after the sweep, got %s", item.Status)
		}
	}
}

func TestNewBatchSupersedesOld(t *testing.T) {
	rw := &fakeRewriter{}
	gen := &fakeGenerator{block: make(chan struct{})}
	o := New(rw, gen, testModels, nil)

	first, err := o.StartBatch(testRefs(), testSubjects(), "sunset beach", 2)
	if err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for gen.callCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("First batch never reached fan-out")
		}
		time.Sleep(2 * time.Millisecond)
	}

	// Starting a new batch implicitly cancels the old one.
	gen.mu.Lock()
	gen.block = nil
	gen.mu.Unlock()

	second, err := o.StartBatch(testRefs(), testSubjects(), "mountain cabin", 2)
	if err != nil {
		t.Fatalf("Second StartBatch failed: %v", err)
	}
	waitIdle(t, o)

	for _, item := range first.Items {
		if item.Status != models.StatusCancelled {
			t.Errorf("Expected superseded item cancelled, got %s", item.Status)
		}
	}
	for _, item := range second.Items {
		if item.Status != models.StatusSuccess {
			t.Errorf("Expected new batch success, got %s", item.Status)
		}
	}

	// Both batches remain visible for the UI.
	if got := len(o.Snapshot()); got != 2 {
		t.Errorf("Expected 2 batches in history, got %d", got)
	}
}

func TestContextPersistsForRetries(t *testing.T) {
	rw := &fakeRewriter{}
	gen := &fakeGenerator{}
	o := New(rw, gen, testModels, nil)

	if _, err := o.StartBatch(testRefs(), testSubjects(), "sunset beach", 2); err != nil {
		t.Fatalf("StartBatch failed: %v", err)
	}
	waitIdle(t, o)

	genCtx := o.Context()
	if genCtx == nil {
		t.Fatal("Expected a persisted generation context")
	}
	if genCtx.ScenePrompt != "sunset beach" {
		t.Errorf("Expected raw scene retained, got %q", genCtx.ScenePrompt)
	}
	if genCtx.OptimizedPrompt != "optimized: sunset beach" {
		t.Errorf("Expected optimized text retained, got %q", genCtx.OptimizedPrompt)
	}
	if len(genCtx.Refs) != 1 {
		t.Errorf("Expected reference images retained, got %d", len(genCtx.Refs))
	}
	if !strings.Contains(genCtx.FinalPrompt, "optimized: sunset beach") {
		t.Error("Expected the assembled prompt to embed the optimized scene")
	}
}
