package block

import (
	"context"
	"fmt"
	"time"
)

// AggregationLoop is responsible for aggregating transactions into blocks.
func (m *Manager) AggregationLoop(ctx context.Context, errCh chan<- error) {
	delay := time.Until(m.getLastBlockTime().Add(m.conf.BlockTime))
	if delay > 0 {
		m.logger.Info("waiting to produce block", "delay", delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}

	// blockTimer is used to signal when to build a block based on the
	// chain block time. A timer is used so that the time to build a block
	// can be taken into account.
	blockTimer := time.NewTimer(0)
	defer blockTimer.Stop()

	// In lazy mode, blocks are built only when there are transactions or
	// every LazyBlockTime.
	if m.conf.LazyAggregator {
		if err := m.lazyAggregationLoop(ctx, blockTimer); err != nil {
			errCh <- fmt.Errorf("error in lazy aggregation loop: %w", err)
		}
		return
	}

	if err := m.normalAggregationLoop(ctx, blockTimer); err != nil {
		errCh <- fmt.Errorf("error in normal aggregation loop: %w", err)
	}
}

func (m *Manager) lazyAggregationLoop(ctx context.Context, blockTimer *time.Timer) error {
	// lazyTimer triggers block publication even during inactivity
	lazyTimer := time.NewTimer(0)
	defer lazyTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-lazyTimer.C:
			m.logger.Debug("Lazy timer triggered block production")
			if err := m.produceBlock(ctx, "lazy_timer", lazyTimer, blockTimer); err != nil {
				return err
			}
			m.txsAvailable = false

		case <-blockTimer.C:
			if m.txsAvailable {
				if err := m.produceBlock(ctx, "block_timer", lazyTimer, blockTimer); err != nil {
					return err
				}
				m.txsAvailable = false
			} else {
				blockTimer.Reset(m.conf.BlockTime)
			}

		case <-m.txNotifyCh:
			m.txsAvailable = true
		}
	}
}

// produceBlock handles the common logic for producing a block and resetting timers
func (m *Manager) produceBlock(ctx context.Context, mode string, lazyTimer, blockTimer *time.Timer) error {
	start := time.Now()

	if err := m.publishBlock(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("error while publishing block: %w", err)
	}
	m.logger.Debug("Successfully published block", "mode", mode)

	resetTimer(lazyTimer, getRemainingSleep(start, m.conf.LazyBlockTime))
	resetTimer(blockTimer, getRemainingSleep(start, m.conf.BlockTime))
	return nil
}

func (m *Manager) normalAggregationLoop(ctx context.Context, blockTimer *time.Timer) error {
	m.logger.Debug("Starting normal aggregation loop", "blockTime", m.conf.BlockTime)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-blockTimer.C:
			// Define the start time for the block production period
			start := time.Now()

			if err := m.publishBlock(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("error while publishing block: %w", err)
			}

			// Reset the blockTimer to signal the next block production
			// period based on the block time.
			blockTimer.Reset(getRemainingSleep(start, m.conf.BlockTime))

		case <-m.txNotifyCh:
			// blocks are produced on schedule regardless
		}
	}
}

// resetTimer resets a timer that may have fired without being drained.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func getRemainingSleep(start time.Time, interval time.Duration) time.Duration {
	elapsed := time.Since(start)

	if elapsed < interval {
		return interval - elapsed
	}

	return time.Millisecond
}
