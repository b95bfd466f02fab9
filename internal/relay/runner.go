package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/mglescz/crosslane/internal/chain"
	"github.com/mglescz/crosslane/internal/metrics"
	"github.com/mglescz/crosslane/internal/store"
)

// Notifier delivers out-of-band operator alerts. Implementations must be safe
// to call from the reconciliation loop; failures are logged, never fatal.
type Notifier interface {
	Notify(ctx context.Context, event string, fields map[string]any) error
}

// Runner drives one bridge pair: it scans source-chain events, reconciles the
// record store, and invokes the payout and optional completion stages. It is
// the sole owner of the block cursor; cycles never overlap because a single
// goroutine runs them.
type Runner struct {
	scanner   *chain.Scanner
	oracle    *chain.Oracle
	store     *store.Store
	payout    PayoutSubmitter
	completer CompletionStage // nil disables the completion stage
	notifier  Notifier        // nil disables notifications
	metrics   *metrics.Metrics
	log       *slog.Logger

	pollInterval time.Duration
	eventDelay   time.Duration
	lookback     uint64
	dryRun       bool

	sleep func(ctx context.Context, d time.Duration) error // swappable in tests
}

// RunnerOptions collects the knobs for NewRunner.
type RunnerOptions struct {
	PollInterval time.Duration
	EventDelay   time.Duration
	Lookback     uint64
	DryRun       bool
	Completer    CompletionStage
	Notifier     Notifier
	Metrics      *metrics.Metrics
}

// NewRunner wires the reconciliation loop.
func NewRunner(scanner *chain.Scanner, oracle *chain.Oracle, st *store.Store,
	payout PayoutSubmitter, log *slog.Logger, opts RunnerOptions) *Runner {
	return &Runner{
		scanner:      scanner,
		oracle:       oracle,
		store:        st,
		payout:       payout,
		completer:    opts.Completer,
		notifier:     opts.Notifier,
		metrics:      opts.Metrics,
		log:          log,
		pollInterval: opts.PollInterval,
		eventDelay:   opts.EventDelay,
		lookback:     opts.Lookback,
		dryRun:       opts.DryRun,
		sleep:        sleepCtx,
	}
}

// StartCursor derives the initial cursor from the current head minus the
// lookback window. The cursor lives only in process memory; a restart
// re-scans at most the lookback span.
func (r *Runner) StartCursor(ctx context.Context) (uint64, error) {
	head, err := r.scanner.Head(ctx)
	if err != nil {
		return 0, err
	}
	if head <= r.lookback {
		return 0, nil
	}
	return head - r.lookback, nil
}

// Run executes cycles on the poll interval until the context is cancelled.
// A failed cycle leaves the cursor where it was so the same range is retried.
func (r *Runner) Run(ctx context.Context) error {
	cursor, err := r.StartCursor(ctx)
	if err != nil {
		return err
	}
	r.log.Info("reconciliation loop starting", "cursor", cursor, "poll_interval", r.pollInterval)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		next, err := r.Cycle(ctx, cursor)
		if err != nil {
			r.metrics.Errors()
			r.log.Error("cycle failed, cursor unchanged", "cursor", cursor, "error", err)
			continue
		}
		cursor = next
		r.metrics.CycleCompleted()
	}
}

// Cycle performs one reconciliation pass over (cursor, head] and returns the
// new cursor. The cursor is advanced only when the scan itself succeeded;
// per-event processing failures are logged and do not hold the cursor back.
func (r *Runner) Cycle(ctx context.Context, cursor uint64) (uint64, error) {
	head, err := r.scanner.Head(ctx)
	if err != nil {
		return cursor, err
	}
	if head <= cursor {
		return cursor, nil
	}
	from := cursor + 1

	initiations, err := r.scanner.ScanInitiations(ctx, from, head)
	if err != nil {
		return cursor, err
	}
	refunds, err := r.scanner.ScanRefunds(ctx, from, head)
	if err != nil {
		return cursor, err
	}

	if len(initiations) > 0 || len(refunds) > 0 {
		r.log.Info("scanned range", "from", from, "to", head,
			"initiations", len(initiations), "refunds", len(refunds))
	}

	for i, ev := range initiations {
		r.metrics.EventObserved("initiation")
		if err := r.processInitiation(ctx, ev); err != nil {
			r.metrics.Errors()
			r.log.Error("initiation processing failed",
				"id", ev.ID.Hex(), "block", ev.Block, "error", err)
		}
		// Throttle outbound RPC volume between events.
		if r.eventDelay > 0 && i < len(initiations)-1 {
			if err := r.sleep(ctx, r.eventDelay); err != nil {
				return cursor, err
			}
		}
	}

	for _, ev := range refunds {
		r.metrics.EventObserved("refund")
		if err := r.processRefund(ctx, ev); err != nil {
			r.metrics.Errors()
			r.log.Error("refund processing failed",
				"id", ev.ID.Hex(), "block", ev.Block, "error", err)
		}
	}

	return head, nil
}

func (r *Runner) processInitiation(ctx context.Context, ev chain.Initiation) error {
	id := ev.ID.Hex()

	exists, err := r.store.Exists(ctx, id)
	if err != nil {
		return err
	}
	if exists {
		r.metrics.EventSkipped()
		r.log.Debug("transfer already recorded, skipping", "id", id)
		return nil
	}

	state, err := r.oracle.GetTransfer(ctx, ev.ID)
	if err != nil {
		return err
	}
	if state.Status != chain.StatusPending {
		r.metrics.EventSkipped()
		r.log.Info("transfer not pending on chain, skipping",
			"id", id, "status", state.Status.String())
		return nil
	}

	if r.dryRun {
		r.log.Info("dry-run: would record and pay out transfer",
			"id", id, "amount", ev.BridgedAmount.String())
		return nil
	}

	recipient := ev.Sender
	err = r.store.Insert(ctx, store.Transfer{
		ID:            id,
		Sender:        ev.Sender.Hex(),
		Recipient:     recipient.Hex(),
		Amount:        ev.OriginalAmount.String(),
		BridgedAmount: ev.BridgedAmount.String(),
		Status:        store.StatusPending,
		SourceBlock:   ev.Block,
		EventTime:     time.Unix(ev.Timestamp.Int64(), 0),
	})
	if errors.Is(err, store.ErrConflict) {
		// Another pass won the insert race; prior successful processing,
		// not corruption.
		r.metrics.EventSkipped()
		r.log.Info("transfer inserted concurrently, skipping", "id", id)
		return nil
	}
	if err != nil {
		return err
	}

	result, err := r.payout.Payout(ctx, ev.ID, recipient, ev.BridgedAmount)
	if err != nil {
		// The record stays pending with no automatic re-drive: the initiation
		// event will not be reprocessed past the existence check. Surface it
		// loudly for manual intervention.
		r.metrics.PayoutStuck()
		r.log.Error("payout failed, transfer stuck pending",
			"id", id, "error", err)
		r.notify(ctx, "payout_failed", map[string]any{
			"id":     id,
			"amount": ev.BridgedAmount.String(),
			"error":  err.Error(),
		})
		return nil
	}
	r.metrics.PayoutSubmitted()

	update := store.StatusUpdate{DestBlock: &result.Block}

	if r.completer != nil {
		cres, err := r.completer.Complete(ctx, ev.ID, recipient, ev.BridgedAmount)
		if err != nil {
			return err
		}
		if cres.Skipped {
			return nil
		}
		r.metrics.Completion()
		update.Signature = hexSignature(cres.Signature)
	}

	return r.store.UpdateStatus(ctx, id, store.StatusCompleted, update)
}

func (r *Runner) processRefund(ctx context.Context, ev chain.Refund) error {
	id := ev.ID.Hex()

	if r.dryRun {
		r.log.Info("dry-run: would mark transfer refunded", "id", id)
		return nil
	}

	// A refund event is trusted on its own: no existence or status guard,
	// last write wins. An overwrite of a terminal record is still worth an
	// operator's attention.
	if prior, err := r.store.Get(ctx, id); err == nil && prior.Status == store.StatusCompleted {
		r.log.Warn("refund overwrites completed record", "id", id)
		r.notify(ctx, "refund_overwrite", map[string]any{
			"id":           id,
			"prior_status": prior.Status,
		})
	}

	if err := r.store.UpdateStatus(ctx, id, store.StatusRefunded, store.StatusUpdate{}); err != nil {
		return err
	}
	r.metrics.RefundUpdate()
	r.log.Info("transfer marked refunded", "id", id, "block", ev.Block)
	return nil
}

func (r *Runner) notify(ctx context.Context, event string, fields map[string]any) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(ctx, event, fields); err != nil {
		r.log.Warn("notification failed", "event", event, "error", err)
	}
}

func hexSignature(sig []byte) string {
	if len(sig) == 0 {
		return ""
	}
	return hexutil.Encode(sig)
}
