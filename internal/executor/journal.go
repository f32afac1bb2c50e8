// internal/executor/journal.go
package executor

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/origin-trader/internal/dex/model"
	"github.com/rovshanmuradov/origin-trader/internal/events"
	"github.com/rovshanmuradov/origin-trader/internal/storage/models"
)

// record writes the attempt to the journal. Journal failures never affect the
// attempt itself.
func (e *Executor) record(ctx context.Context, a *attempt) {
	if e.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := e.journal.SaveAttempt(ctx, toModel(a)); err != nil {
		a.log.Warn("Failed to journal trade attempt", zap.Error(err))
	}
}

func toModel(a *attempt) *models.Attempt {
	m := &models.Attempt{
		ID:           a.id,
		Owner:        a.key.owner.Hex(),
		Side:         a.key.side.String(),
		Flow:         string(a.flow),
		Phase:        a.market.Phase().String(),
		Mint:         a.market.Mint().Hex(),
		AmountIn:     a.amount.String(),
		Tolerance:    a.tolerance,
		State:        a.state.String(),
		Reason:       string(a.out.Reason),
		ErrorMessage: a.errMsg,
	}
	if a.out.Quote.OutputAmount != nil {
		m.QuotedOut = a.out.Quote.OutputAmount.String()
	}
	if a.out.MinOut != nil {
		m.MinOut = a.out.MinOut.String()
	}
	if a.out.ApprovalHash != (common.Hash{}) {
		m.ApprovalHash = a.out.ApprovalHash.Hex()
	}
	if a.out.Hash != (common.Hash{}) {
		m.TxHash = a.out.Hash.Hex()
	}
	if a.out.FeeWei != nil {
		m.FeeWei = a.out.FeeWei.String()
	}
	return m
}

// Reconcile settles journalled attempts that were left in Confirming, e.g.
// after a crash or an abandoned wait. Each hash gets at most perTx to produce
// a receipt; attempts that still have none stay unsettled.
// Settled successes publish TradeSucceeded so balances refresh.
func (e *Executor) Reconcile(ctx context.Context, perTx time.Duration) ([]*models.Attempt, error) {
	if e.journal == nil {
		return nil, nil
	}
	pending, err := e.journal.ListUnsettled(ctx)
	if err != nil {
		return nil, err
	}

	var settled []*models.Attempt
	for _, rec := range pending {
		hash := common.HexToHash(rec.TxHash)
		log := e.logger.With(zap.String("attempt_id", rec.ID), zap.String("tx_hash", rec.TxHash))

		waitCtx, cancel := context.WithTimeout(ctx, perTx)
		receipt, err := e.chain.WaitForReceipt(waitCtx, hash)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return settled, ctx.Err()
			}
			log.Info("Attempt still unconfirmed", zap.Error(err))
			continue
		}

		rec.FeeWei = fee(receipt).String()
		if receipt.Status == types.ReceiptStatusSuccessful {
			rec.State = Succeeded.String()
		} else {
			rec.State = Failed.String()
			rec.Reason = string(ReasonActionFailed)
			rec.ErrorMessage = "transaction reverted"
		}
		if err := e.journal.SaveAttempt(ctx, rec); err != nil {
			return settled, err
		}
		log.Info("Attempt reconciled", zap.String("state", rec.State))
		settled = append(settled, rec)

		if rec.State == Succeeded.String() {
			side, _ := model.ParseSide(rec.Side)
			e.publish(&events.TradeSucceededEvent{
				BaseEvent: events.NewBase(events.TradeSucceeded),
				Owner:     common.HexToAddress(rec.Owner),
				Side:      side,
				Flow:      rec.Flow,
				Mint:      common.HexToAddress(rec.Mint),
				Hash:      hash,
				FeeWei:    fee(receipt),
			})
		}
	}
	return settled, nil
}
