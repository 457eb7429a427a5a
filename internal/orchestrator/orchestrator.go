// Package orchestrator drives one end-to-end "produce N portrait variations"
// operation: optimize the scene prompt (with a single-slot cache), assemble
// the final prompt, fan out the generate calls, and track per-item lifecycle
// with whole-batch cancellation and targeted retry.
package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/framefold/groupshot/internal/gateway"
	"github.com/framefold/groupshot/internal/models"
	"github.com/framefold/groupshot/internal/prompt"
)

// Rewriter optimizes a raw scene description into a detailed prompt.
type Rewriter interface {
	RewritePrompt(ctx context.Context, scene string) (string, error)
}

// ImageGenerator renders one portrait from reference images and a prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, refs []models.EncodedImage, prompt string, model string) (models.EncodedImage, error)
}

// ModelPair names the default synthesis model and the cheaper fallback used
// when retrying a quota-flagged failure.
type ModelPair struct {
	Default  string
	Fallback string
}

// GenerationContext is the (reference images, final prompt) pair persisted
// from the most recent batch for use by retries.
type GenerationContext struct {
	Refs            []models.EncodedImage
	FinalPrompt     string
	ScenePrompt     string
	OptimizedPrompt string
}

type batchRun struct {
	batch     *models.Batch
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled bool
	done      chan struct{}
}

// Orchestrator owns all batch and item state for one session. All mutation
// happens under one mutex; every completion callback re-checks batch identity
// and cancellation so callbacks from a superseded batch can never touch items
// belonging to a newer one.
type Orchestrator struct {
	rewriter  Rewriter
	generator ImageGenerator
	modelPair ModelPair
	log       *slog.Logger

	mu      sync.Mutex
	batches []*models.Batch
	items   map[string]*models.GenerationItem
	active  *batchRun
	busy    bool

	// Single-slot optimization cache: valid only while the raw scene
	// prompt is byte-identical to cacheRaw.
	cacheRaw       string
	cacheOptimized string
	cacheValid     bool

	lastGen *GenerationContext
}

func New(rewriter Rewriter, generator ImageGenerator, pair ModelPair, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		rewriter:  rewriter,
		generator: generator,
		modelPair: pair,
		log:       log,
		items:     make(map[string]*models.GenerationItem),
	}
}

func validCount(n int) bool { return n == 2 || n == 4 || n == 8 }

// StartBatch validates its inputs, supersedes any active batch, publishes
// variationCount pending items immediately, and kicks off the pipeline in the
// background. The returned batch already contains every placeholder.
func (o *Orchestrator) StartBatch(refs []models.EncodedImage, subjects []prompt.Subject, scene string, variationCount int) (*models.Batch, error) {
	switch {
	case len(subjects) == 0:
		return nil, gateway.Validationf("add at least one subject before generating")
	case strings.TrimSpace(scene) == "":
		return nil, gateway.Validationf("describe the scene before generating")
	case !validCount(variationCount):
		return nil, gateway.Validationf("variation count must be 2, 4 or 8")
	}

	batch := &models.Batch{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now(),
		ScenePrompt: scene,
		Items:       make([]*models.GenerationItem, 0, variationCount),
	}
	for i := 0; i < variationCount; i++ {
		batch.Items = append(batch.Items, &models.GenerationItem{
			ID:     uuid.NewString(),
			Status: models.StatusPending,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &batchRun{batch: batch, ctx: ctx, cancel: cancel, done: make(chan struct{})}

	o.mu.Lock()
	if o.active != nil {
		o.cancelLocked(o.active)
	}
	o.active = run
	o.busy = true
	o.batches = append(o.batches, batch)
	for _, item := range batch.Items {
		o.items[item.ID] = item
	}
	o.mu.Unlock()

	o.log.Info("batch started", "batch", batch.ID, "variations", variationCount, "subjects", len(subjects))
	go o.run(run, refs, subjects, scene)

	return batch, nil
}

func (o *Orchestrator) run(b *batchRun, refs []models.EncodedImage, subjects []prompt.Subject, scene string) {
	defer close(b.done)

	optimized, err := o.resolveOptimized(b.ctx, scene)
	if err != nil {
		o.mu.Lock()
		aborted := b.cancelled || b.ctx.Err() != nil || gateway.IsCancelled(err)
		o.mu.Unlock()
		if aborted {
			// The cancellation path has already flipped the items.
			return
		}
		o.failBatch(b, err)
		return
	}

	// Assembly re-runs on every batch, cache hit or not, because subject
	// data may have changed since the optimized text was last used.
	finalRefs, finalPrompt := prompt.Assemble(refs, subjects, optimized)

	o.mu.Lock()
	// A batch cancelled or superseded while the rewrite was outstanding
	// must not touch the generation context or reach fan-out.
	if b.cancelled || b.ctx.Err() != nil {
		o.mu.Unlock()
		return
	}
	b.batch.OptimizedPrompt = optimized
	o.lastGen = &GenerationContext{
		Refs:            finalRefs,
		FinalPrompt:     finalPrompt,
		ScenePrompt:     scene,
		OptimizedPrompt: optimized,
	}
	model := o.modelPair.Default
	items := b.batch.Items
	o.mu.Unlock()

	var g errgroup.Group
	for _, item := range items {
		g.Go(func() error {
			img, genErr := o.generator.GenerateImage(b.ctx, finalRefs, finalPrompt, model)
			o.settle(b, item, img, genErr)
			return nil
		})
	}
	_ = g.Wait()

	o.mu.Lock()
	if o.active == b {
		o.active = nil
		o.busy = false
	}
	o.mu.Unlock()
	o.log.Info("batch settled", "batch", b.batch.ID)
}

// resolveOptimized returns the rewritten scene prompt, reusing the single
// cache slot when the raw text is byte-identical to the last rewrite.
func (o *Orchestrator) resolveOptimized(ctx context.Context, scene string) (string, error) {
	o.mu.Lock()
	if o.cacheValid && o.cacheRaw == scene {
		cached := o.cacheOptimized
		o.mu.Unlock()
		o.log.Debug("optimization cache hit")
		return cached, nil
	}
	o.mu.Unlock()

	optimized, err := o.rewriter.RewritePrompt(ctx, scene)
	if err != nil {
		return "", err
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	o.mu.Lock()
	o.cacheRaw = scene
	o.cacheOptimized = optimized
	o.cacheValid = true
	o.mu.Unlock()
	return optimized, nil
}

// failBatch marks every still-pending item as errored. Used when a shared
// pre-fan-out step fails, which aborts the whole batch.
func (o *Orchestrator) failBatch(b *batchRun, err error) {
	msg := gateway.MessageOf(err)
	o.log.Error("batch failed before fan-out", "batch", b.batch.ID, "err", err)

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, item := range b.batch.Items {
		if item.Status == models.StatusPending {
			item.Status = models.StatusError
			item.ErrorMessage = msg
			item.IsQuotaError = gateway.IsQuota(err)
		}
	}
	if o.active == b {
		o.active = nil
		o.busy = false
	}
}

// settle applies one generate call's outcome to its item. The batch identity
// and cancellation checks gate every callback, so a stale callback from a
// superseded batch can never overwrite a newer state.
func (o *Orchestrator) settle(b *batchRun, item *models.GenerationItem, img models.EncodedImage, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if item.Status != models.StatusPending {
		return
	}
	if b.cancelled || b.ctx.Err() != nil || gateway.IsCancelled(err) {
		item.Status = models.StatusCancelled
		return
	}
	if err != nil {
		item.Status = models.StatusError
		item.ErrorMessage = gateway.MessageOf(err)
		item.IsQuotaError = gateway.IsQuota(err)
		o.log.Warn("item failed", "item", item.ID, "kind", gateway.KindOf(err))
		return
	}
	item.Status = models.StatusSuccess
	item.Result = &img
}

// CancelBatch cancels the active batch: every in-flight call is signalled,
// every still-pending item flips to cancelled, and the busy flag clears
// immediately rather than waiting for the network calls to return. No-op when
// nothing is active.
func (o *Orchestrator) CancelBatch() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return
	}
	o.log.Info("batch cancelled", "batch", o.active.batch.ID)
	o.cancelLocked(o.active)
	o.active = nil
	o.busy = false
}

func (o *Orchestrator) cancelLocked(b *batchRun) {
	b.cancelled = true
	b.cancel()
	for _, item := range b.batch.Items {
		if item.Status == models.StatusPending {
			item.Status = models.StatusCancelled
		}
	}
}

// RetryItem re-issues the generate call for one failed item using the
// persisted generation context, an escalating mitigation suffix, and - for
// quota-flagged failures - the cheaper fallback model. It blocks until the
// call settles. Retries run detached from any batch cancel signal.
func (o *Orchestrator) RetryItem(itemID string) (*models.GenerationItem, error) {
	o.mu.Lock()
	item, ok := o.items[itemID]
	if !ok {
		o.mu.Unlock()
		return nil, gateway.Validationf("unknown generation item")
	}
	if o.lastGen == nil {
		o.mu.Unlock()
		return nil, gateway.Validationf("nothing to retry yet; generate a batch first")
	}
	if item.Status != models.StatusError {
		o.mu.Unlock()
		return nil, gateway.Validationf("only failed items can be retried")
	}

	genCtx := o.lastGen
	model := o.modelPair.Default
	if item.IsQuotaError {
		model = o.modelPair.Fallback
	}
	mitigation := prompt.Mitigation(item.RetryCount)

	item.Status = models.StatusPending
	item.RetryCount++
	item.ErrorMessage = ""
	item.IsQuotaError = false
	attempt := item.RetryCount
	o.mu.Unlock()

	retryPrompt := genCtx.FinalPrompt
	if mitigation != "" {
		retryPrompt += "\n\n" + mitigation
	}

	o.log.Info("retrying item", "item", itemID, "model", model, "attempt", attempt)
	img, err := o.generator.GenerateImage(context.Background(), genCtx.Refs, retryPrompt, model)

	o.mu.Lock()
	defer o.mu.Unlock()
	if item.Status != models.StatusPending {
		return item, nil
	}
	if err != nil {
		item.Status = models.StatusError
		item.ErrorMessage = gateway.MessageOf(err)
		item.IsQuotaError = gateway.IsQuota(err)
		return item, nil
	}
	item.Status = models.StatusSuccess
	item.Result = &img
	return item, nil
}

// RetryAllFailed retries every item currently in error state, strictly one
// at a time to bound simultaneous load on the remote service. Returns how
// many retries were attempted.
func (o *Orchestrator) RetryAllFailed() (int, error) {
	o.mu.Lock()
	if o.lastGen == nil {
		o.mu.Unlock()
		return 0, gateway.Validationf("nothing to retry yet; generate a batch first")
	}
	var failed []string
	for _, batch := range o.batches {
		for _, item := range batch.Items {
			if item.Status == models.StatusError {
				failed = append(failed, item.ID)
			}
		}
	}
	o.mu.Unlock()

	retried := 0
	for _, id := range failed {
		// Each retry fully settles before the next begins. A validation
		// error here means the item moved state concurrently; skip it.
		if _, err := o.RetryItem(id); err != nil {
			o.log.Warn("retry skipped", "item", id, "err", err)
			continue
		}
		retried++
	}
	return retried, nil
}

// Busy reports whether a batch is currently in flight.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.busy
}

// Context returns the persisted generation context from the most recent
// batch, or nil when no batch has reached fan-out yet.
func (o *Orchestrator) Context() *GenerationContext {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastGen
}

// Item returns a copy of one item's current state.
func (o *Orchestrator) Item(itemID string) (models.GenerationItem, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	item, ok := o.items[itemID]
	if !ok {
		return models.GenerationItem{}, false
	}
	return *item, true
}

// Snapshot returns a deep copy of all batches, oldest first, safe to
// serialize while calls are still settling.
func (o *Orchestrator) Snapshot() []*models.Batch {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]*models.Batch, 0, len(o.batches))
	for _, b := range o.batches {
		bc := *b
		bc.Items = make([]*models.GenerationItem, 0, len(b.Items))
		for _, item := range b.Items {
			ic := *item
			bc.Items = append(bc.Items, &ic)
		}
		out = append(out, &bc)
	}
	return out
}
