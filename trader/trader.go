// Copyright (c) 2025 BVK Chaitanya

// Package trader implements the control loop that ties the price-trigger
// strategy, the lot ledger, the parameter bandit and the order execution
// guard together.
package trader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/bvk/spotbot/bandit"
	"github.com/bvk/spotbot/ctxutil"
	"github.com/bvk/spotbot/exchange"
	"github.com/bvk/spotbot/gobs"
	"github.com/bvk/spotbot/guard"
	"github.com/bvk/spotbot/ledger"
	"github.com/bvk/spotbot/metrics"
	"github.com/bvk/spotbot/store"
	"github.com/bvk/spotbot/strategy"
	"github.com/shopspring/decimal"
)

// StrategyStateKey is the state key that holds the saved strategy state.
const StrategyStateKey = "strategy"

// PendingBuyKey is the state key that holds the market buy order placed but
// not yet recorded.
const PendingBuyKey = "pending-buy"

// Notifier delivers trade alerts to the operator.
type Notifier interface {
	SendMessage(ctx context.Context, at time.Time, msg string) error
}

type Trader struct {
	opts Options

	st      *store.Store
	guard   *guard.Guard
	ledger  *ledger.Ledger
	manager *ledger.Manager
	bandit  *bandit.Bandit

	notifier Notifier

	strategy *strategy.Strategy
	config   *gobs.TriggerConfig
	reason   string

	// alerts collects the messages for the sells closed by the lot manager in
	// the current tick.
	alerts []*alert

	status atomic.Pointer[Status]

	refreshedAt time.Time

	now func() time.Time
}

type alert struct {
	lotID    int64
	clientID string
	pnl      decimal.Decimal
	msg      string
}

// New creates a trader. Notifier can be nil.
func New(st *store.Store, g *guard.Guard, b *bandit.Bandit, notifier Notifier, opts *Options) (*Trader, error) {
	t := &Trader{
		st:       st,
		guard:    g,
		ledger:   ledger.New(st),
		bandit:   b,
		notifier: notifier,
		now:      time.Now,
	}
	if opts != nil {
		t.opts = *opts
	}
	t.opts.setDefaults()
	if err := t.opts.Check(); err != nil {
		return nil, err
	}
	if t.opts.Symbol != g.Symbol() {
		return nil, fmt.Errorf("trader symbol %q doesn't match the guard symbol %q: %w", t.opts.Symbol, g.Symbol(), os.ErrInvalid)
	}
	t.manager = ledger.NewManager(t.ledger, g, t.onSellFilled)
	return t, nil
}

// Status returns the status from the last successful tick or nil.
func (t *Trader) Status() *Status {
	return t.status.Load()
}

func (t *Trader) Store() *store.Store {
	return t.st
}

// Start validates the account, selects the initial trigger configuration and
// restores the saved strategy state. It must be called once before Run or
// Tick.
func (t *Trader) Start(ctx context.Context) error {
	if err := t.guard.ValidateCredentials(ctx); err != nil {
		return fmt.Errorf("could not validate exchange credentials: %w", err)
	}
	c, err := t.guard.Constraints(ctx)
	if err != nil {
		return fmt.Errorf("could not fetch symbol constraints: %w", err)
	}
	fees := t.guard.FeeRates(ctx)
	t.refreshedAt = t.now()

	if _, err := t.bandit.Bootstrap(ctx); err != nil {
		return err
	}
	choice, _, err := t.bandit.Rotate(ctx, t.now())
	if err != nil {
		return err
	}
	t.config, t.reason = choice.Config, choice.Reason

	sopts := &strategy.Options{
		MinChangePct:      t.config.MinChangePct,
		MaxChangePct:      t.config.MaxChangePct,
		RearmThresholdPct: t.opts.RearmThresholdPct,
		ProfitPct:         t.opts.ProfitPct,
		FeeRate:           decimal.Max(fees.Maker, fees.Taker),
		SafetyBps:         t.opts.SafetyBps,
		TickSize:          c.TickSize,
		MaxSpacingPct:     t.opts.MaxSpacingPct,
		VolMultiplier:     t.opts.VolMultiplier,
	}
	if err := t.loadStrategy(ctx, c, sopts); err != nil {
		return err
	}

	if err := t.settlePendingBuy(ctx, c); err != nil {
		return fmt.Errorf("could not settle pending buy: %w", err)
	}

	// Lots with canceled sells are settled and re-armed by the lot manager
	// below, including the sells that were partially filled.
	if t.opts.CancelOpenOrdersOnStart {
		if err := t.guard.CancelAll(ctx); err != nil {
			return fmt.Errorf("could not cancel open orders: %w", err)
		}
		slog.Info("canceled all open orders on start", "symbol", t.opts.Symbol)
	}

	if t.opts.ResumeOnStart {
		if err := t.resume(ctx, c); err != nil {
			return err
		}
	}

	if err := t.diagnose(ctx, c, fees); err != nil {
		return err
	}
	return t.manageLots(ctx)
}

// loadStrategy restores the saved strategy state or creates a new strategy
// with the initial balance.
func (t *Trader) loadStrategy(ctx context.Context, c *exchange.SymbolConstraints, sopts *strategy.Options) error {
	var saved *gobs.StrategyState
	err := t.st.View(ctx, func(ctx context.Context, tx *store.Tx) (err error) {
		saved, err = store.GetValue[gobs.StrategyState](ctx, tx, StrategyStateKey)
		if errors.Is(err, os.ErrNotExist) {
			saved, err = nil, nil
		}
		return err
	})
	if err != nil {
		return err
	}

	balance := t.opts.InitialBalance
	if saved == nil && !balance.IsPositive() {
		if balance, err = t.guard.FreeBalance(ctx, c.QuoteAsset); err != nil {
			return err
		}
	}
	s, err := strategy.New(balance, sopts)
	if err != nil {
		return err
	}
	if saved != nil {
		if err := s.Restore(saved); err != nil {
			return fmt.Errorf("could not restore strategy state: %w", err)
		}
		slog.Info("restored strategy state", "side", saved.Side, "reference", saved.ReferencePrice, "balance", saved.Balance)
	}
	t.strategy = s
	return nil
}

// reload replaces the in-memory strategy state with the saved state after a
// failed transaction.
func (t *Trader) reload(ctx context.Context) error {
	return t.st.View(ctx, func(ctx context.Context, tx *store.Tx) error {
		saved, err := store.GetValue[gobs.StrategyState](ctx, tx, StrategyStateKey)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		return t.strategy.Restore(saved)
	})
}

// resume turns the last buy without a later sell into an open lot. It is
// skipped when active lots exist because lots are saved with their trades.
func (t *Trader) resume(ctx context.Context, c *exchange.SymbolConstraints) error {
	lots, err := t.ledger.ListActiveLots(ctx)
	if err != nil {
		return err
	}
	if len(lots) > 0 {
		return nil
	}
	var buy *gobs.Trade
	if err := t.st.View(ctx, func(ctx context.Context, tx *store.Tx) (err error) {
		buy, err = tx.UnmatchedBuy(ctx)
		return err
	}); err != nil {
		return err
	}
	if buy == nil {
		return nil
	}
	free, err := t.guard.FreeBalance(ctx, c.BaseAsset)
	if err != nil {
		return err
	}
	qty := guard.Floor(decimal.Min(buy.Quantity, free), c.StepSize)
	if !qty.IsPositive() {
		slog.Warn("no base balance to resume the last buy", "trade", buy.ID, "qty", buy.Quantity, "free", free)
		return nil
	}
	err = t.st.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		lot, err := t.ledger.OpenOrMergeLotTx(ctx, tx, buy.Price, qty, t.strategy.SellTarget(buy.Price))
		if err != nil {
			return err
		}
		slog.Info("resumed last buy as a lot", "trade", buy.ID, "lot", lot.ID, "price", buy.Price, "qty", qty)
		return t.syncPosition(ctx, tx)
	})
	if err != nil {
		return t.errorf(ctx, err)
	}
	return nil
}

// diagnose logs the account summary at startup.
func (t *Trader) diagnose(ctx context.Context, c *exchange.SymbolConstraints, fees *exchange.FeeRates) error {
	price, err := t.guard.Price(ctx)
	if err != nil {
		return err
	}
	base, err := t.guard.FreeBalance(ctx, c.BaseAsset)
	if err != nil {
		return err
	}
	quote, err := t.guard.FreeBalance(ctx, c.QuoteAsset)
	if err != nil {
		return err
	}
	portfolio, _ := quote.Add(base.Mul(price)).Float64()
	ntrades := -1
	if t.opts.TargetBalance > 0 {
		ntrades = strategy.TradesToTarget(portfolio, t.opts.TargetBalance, t.opts.ProfitPct)
	}
	slog.Info("starting trader", "symbol", t.opts.Symbol, "exchange", t.guard.Gateway().ExchangeName(),
		"price", price, c.BaseAsset, base, c.QuoteAsset, quote, "portfolio", portfolio,
		"maker-fee", fees.Maker, "taker-fee", fees.Taker,
		"min-qty", c.MinQty, "step-size", c.StepSize, "min-notional", c.MinNotional, "tick-size", c.TickSize,
		"target", t.opts.TargetBalance, "trades-to-target", ntrades, "config", t.config.ID)
	return nil
}

// syncPosition derives the strategy position from the aggregate of the
// active lots and saves the strategy state.
func (t *Trader) syncPosition(ctx context.Context, tx *store.Tx) error {
	lots, err := tx.ListActiveLots(ctx)
	if err != nil {
		return err
	}
	qty, avg := ledger.Summary(lots)
	t.strategy.Resume(avg, qty)
	return store.SetValue(ctx, tx, StrategyStateKey, t.strategy.State())
}

// errorf reloads the strategy state after a failed update so that the
// in-memory state matches the database.
func (t *Trader) errorf(ctx context.Context, err error) error {
	if rerr := t.reload(ctx); rerr != nil {
		return errors.Join(err, rerr)
	}
	return err
}

// Run runs ticks until the context is canceled. Tick errors are logged and
// retried on the next tick. A tick in progress is completed before Run
// returns.
func (t *Trader) Run(ctx context.Context) error {
	for context.Cause(ctx) == nil {
		if _, err := t.Tick(context.WithoutCancel(ctx)); err != nil {
			slog.Error("tick failed", "symbol", t.opts.Symbol, "err", err)
			metrics.IncTickErrors()
		}
		ctxutil.Sleep(ctx, t.opts.PollInterval)
	}
	slog.Info("trader stopped", "symbol", t.opts.Symbol, "cause", context.Cause(ctx))
	return context.Cause(ctx)
}

// Tick runs one iteration of the control loop: refresh price, manage the
// lots, evaluate triggers, place orders, rotate the bandit configuration and
// report status.
func (t *Trader) Tick(ctx context.Context) (*Status, error) {
	if t.strategy == nil {
		return nil, fmt.Errorf("trader is not started: %w", os.ErrInvalid)
	}
	if t.now().Sub(t.refreshedAt) >= t.opts.RefreshInterval {
		t.refresh(ctx)
	}
	c, err := t.guard.Constraints(ctx)
	if err != nil {
		return nil, err
	}
	price, err := t.guard.Price(ctx)
	if err != nil {
		return nil, err
	}

	if err := t.settlePendingBuy(ctx, c); err != nil {
		return nil, err
	}
	if err := t.manageLots(ctx); err != nil {
		return nil, err
	}

	var d *strategy.Decision
	var lots []*gobs.Lot
	if err := t.st.Update(ctx, func(ctx context.Context, tx *store.Tx) (err error) {
		if lots, err = tx.ListActiveLots(ctx); err != nil {
			return err
		}
		qty, avg := ledger.Summary(lots)
		t.strategy.Resume(avg, qty)
		d = t.strategy.Evaluate(price)
		return store.SetValue(ctx, tx, StrategyStateKey, t.strategy.State())
	}); err != nil {
		return nil, t.errorf(ctx, err)
	}
	if d.Intent == strategy.HOLD_LONG && !t.anySellable(c, lots) {
		// Lots below the symbol minimums cannot be sold; keep buying so that
		// they grow into sellable lots.
		if bd := t.strategy.EvaluateBuy(price); bd.Intent == strategy.WANT_BUY {
			d = bd
		}
	}

	base, err := t.guard.FreeBalance(ctx, c.BaseAsset)
	if err != nil {
		return nil, err
	}
	quote, err := t.guard.FreeBalance(ctx, c.QuoteAsset)
	if err != nil {
		return nil, err
	}
	ratio := inventoryRatio(base, quote, price, lots)
	risk := strategy.RiskFraction(t.config.TradeQtyFrac, ratio)

	switch d.Intent {
	case strategy.WANT_BUY:
		if risk <= 0 {
			slog.Info("buy trigger skipped for inventory limit", "price", price, "inventory-ratio", ratio)
			break
		}
		budget := quote.Mul(decimal.NewFromFloat(risk))
		if err := t.buy(ctx, c, price, budget.Div(price)); err != nil {
			if !errors.Is(err, guard.ErrSizingRejected) {
				return nil, err
			}
			slog.Info("buy trigger skipped for order size", "price", price, "budget", budget, "err", err)
		}
	case strategy.WANT_SELL:
		slog.Info("price reached the max change from entry; reviewing sells", "price", price, "entry", t.strategy.Position().EntryPrice, "target", d.SellPrice)
		if err := t.manageLots(ctx); err != nil {
			return nil, err
		}
	}

	if err := t.rotate(ctx); err != nil {
		slog.Warn("could not rotate trigger configuration", "err", err)
	}

	// Status reflects the state after the orders.
	if err := t.st.View(ctx, func(ctx context.Context, tx *store.Tx) (err error) {
		lots, err = tx.ListActiveLots(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	s := &Status{
		Time:           t.now(),
		Symbol:         t.opts.Symbol,
		Price:          price,
		ReferencePrice: t.strategy.ReferencePrice(),
		Intent:         d.Intent,
		Reason:         d.Reason,
		Drop:           d.Drop,
		Spacing:        t.strategy.Spacing(),
		Position:       t.strategy.Position(),
		Balance:        t.strategy.Balance(),
		FreeBase:       base,
		FreeQuote:      quote,
		InventoryRatio: ratio,
		RiskFrac:       risk,
		ActiveLots:     len(lots),
		ConfigID:       t.config.ID,
		ConfigReason:   t.reason,
	}
	t.status.Store(s)

	ref, _ := s.ReferencePrice.Float64()
	fprice, _ := price.Float64()
	metrics.ObserveTick(&metrics.Tick{
		Price:          fprice,
		ReferencePrice: ref,
		InventoryRatio: ratio,
		Spacing:        s.Spacing,
		ActiveLots:     len(lots),
		ConfigID:       t.config.ID,
		Intent:         string(d.Intent),
	})
	slog.Info(s.String())
	return s, nil
}

// refresh drops the cached symbol constraints and fee rates so that they are
// fetched again, and updates the fee rate used for new sell targets.
func (t *Trader) refresh(ctx context.Context) {
	t.guard.Refresh()
	fees := t.guard.FeeRates(ctx)
	rate := decimal.Max(fees.Maker, fees.Taker)
	if err := t.strategy.SetFeeRate(rate); err != nil {
		slog.Warn("could not update the strategy fee rate", "rate", rate, "err", err)
		return
	}
	t.refreshedAt = t.now()
	slog.Info("refreshed exchange fee rates", "maker", fees.Maker, "taker", fees.Taker)
}

func (t *Trader) anySellable(c *exchange.SymbolConstraints, lots []*gobs.Lot) bool {
	for _, lot := range lots {
		qty, price := guard.Quantize(c, lot.Quantity, lot.TargetPrice)
		if guard.Sellable(c, qty, price) {
			return true
		}
	}
	return false
}

// inventoryRatio returns the fraction of the portfolio value held in the base
// asset. Quantity locked in armed sells is counted through the lots.
func inventoryRatio(base, quote, price decimal.Decimal, lots []*gobs.Lot) float64 {
	held := base
	for _, lot := range lots {
		if lot.Status == gobs.SELL_PLACED {
			held = held.Add(lot.Quantity)
		}
	}
	value := held.Mul(price)
	total := value.Add(quote)
	if !total.IsPositive() {
		return 0
	}
	ratio, _ := value.Div(total).Float64()
	return ratio
}

// manageLots runs the lot manager and delivers alerts for the closed lots.
// Database failures abort the tick; other failures are retried on the next
// tick.
func (t *Trader) manageLots(ctx context.Context) error {
	t.alerts = nil
	err := t.manager.ManageLots(ctx)
	if err != nil {
		if rerr := t.reload(ctx); rerr != nil {
			return errors.Join(err, rerr)
		}
	}
	t.deliverAlerts(ctx)
	if err != nil {
		if errors.Is(err, store.ErrPersistence) {
			return err
		}
		slog.Warn("could not manage all lots", "err", err)
	}
	return nil
}

// deliverAlerts sends the alerts for the sells that are recorded in the
// database. A recorded sell closes the lot or detaches the sell order from the
// lot, so alerts from rolled back transactions are dropped.
func (t *Trader) deliverAlerts(ctx context.Context) {
	alerts := t.alerts
	t.alerts = nil
	for _, a := range alerts {
		var lot *gobs.Lot
		if err := t.st.View(ctx, func(ctx context.Context, tx *store.Tx) (err error) {
			lot, err = tx.GetLot(ctx, a.lotID)
			return err
		}); err != nil {
			continue
		}
		if lot.Status != gobs.CLOSED && lot.SellClientID == a.clientID {
			continue
		}
		pnl, _ := a.pnl.Float64()
		metrics.ObserveTrade(exchange.SELL, pnl)
		t.notify(ctx, a.msg)
	}
}

func (t *Trader) notify(ctx context.Context, msg string) {
	if t.notifier == nil {
		return
	}
	if err := t.notifier.SendMessage(ctx, t.now(), msg); err != nil {
		slog.Warn("could not send notification", "err", err)
	}
}

// buy places a market buy and records the fill, the lot and the strategy
// state in one transaction. Client id of the order is saved before the order
// is placed, so that a fill that could not be recorded is found on a later
// tick.
func (t *Trader) buy(ctx context.Context, c *exchange.SymbolConstraints, price, qty decimal.Decimal) error {
	q, _, err := guard.Size(c, qty, price)
	if err != nil {
		return err
	}
	clientID, err := t.guard.NewClientID(ctx)
	if err != nil {
		return err
	}
	pending := &gobs.PendingBuy{
		ClientOrderID: clientID,
		Quantity:      q,
		RefPrice:      price,
		ConfigID:      t.config.ID,
		CreatedAt:     t.now(),
	}
	if err := t.st.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		return store.SetValue(ctx, tx, PendingBuyKey, pending)
	}); err != nil {
		return err
	}

	order, err := t.guard.PlaceMarket(ctx, clientID, exchange.BUY, q, price)
	if err != nil {
		// Pending buy is kept; the order is looked up on the next tick because
		// a failed placement may still have reached the exchange.
		return err
	}
	metrics.IncOrders(exchange.BUY, "MARKET")

	if err := t.recordBuy(ctx, pending, order); err != nil {
		return err
	}
	return t.manageLots(ctx)
}

// settlePendingBuy looks up the saved market buy order and records its fill.
// Pending buy is dropped if the exchange doesn't know the order.
func (t *Trader) settlePendingBuy(ctx context.Context, c *exchange.SymbolConstraints) error {
	var pending *gobs.PendingBuy
	if err := t.st.View(ctx, func(ctx context.Context, tx *store.Tx) (err error) {
		pending, err = store.GetValue[gobs.PendingBuy](ctx, tx, PendingBuyKey)
		if errors.Is(err, os.ErrNotExist) {
			pending, err = nil, nil
		}
		return err
	}); err != nil {
		return err
	}
	if pending == nil {
		return nil
	}

	order, err := t.guard.Order(ctx, pending.ClientOrderID)
	if err != nil {
		if !errors.Is(err, exchange.ErrOrderNotFound) {
			return err
		}
		slog.Info("pending market buy was not placed", "client-order-id", pending.ClientOrderID)
		return t.st.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
			return tx.DeleteState(ctx, PendingBuyKey)
		})
	}
	slog.Info("found unrecorded market buy", "client-order-id", pending.ClientOrderID, "status", order.Status, "filled", order.FilledSize)
	return t.recordBuy(ctx, pending, order)
}

// recordBuy saves the buy trade, merges the fill into a lot and clears the
// pending buy in one transaction. Orders that are not done yet are left for a
// later tick.
func (t *Trader) recordBuy(ctx context.Context, pending *gobs.PendingBuy, order *exchange.Order) error {
	if !order.Status.IsDone() {
		slog.Info("market buy is not done yet", "client-order-id", pending.ClientOrderID, "status", order.Status)
		return nil
	}
	fillPrice, fillQty := order.FilledPrice(), order.FilledSize
	if !fillQty.IsPositive() {
		if order.Status != exchange.FILLED {
			slog.Info("market buy is done without a fill", "client-order-id", pending.ClientOrderID, "status", order.Status)
			return t.st.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
				return tx.DeleteState(ctx, PendingBuyKey)
			})
		}
		// Gateway didn't report the fill; use the requested size at the ticker
		// price.
		fillQty, fillPrice = pending.Quantity, pending.RefPrice
	}

	var lot *gobs.Lot
	err := t.st.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		t.strategy.OnBuyExecuted(fillPrice, fillQty, order.Fee)
		l, err := t.ledger.OpenOrMergeLotTx(ctx, tx, fillPrice, fillQty, t.strategy.SellTarget(fillPrice))
		if err != nil {
			return err
		}
		lot = l
		trade := &gobs.Trade{
			Time:          t.now(),
			Side:          exchange.BUY,
			Price:         fillPrice,
			Quantity:      fillQty,
			Fee:           order.Fee,
			BalanceAfter:  t.strategy.Balance(),
			ConfigID:      pending.ConfigID,
			OrderID:       order.OrderID,
			ClientOrderID: pending.ClientOrderID,
			LotID:         lot.ID,
		}
		if _, err := tx.AppendTrade(ctx, trade); err != nil {
			return err
		}
		if err := tx.DeleteState(ctx, PendingBuyKey); err != nil {
			return err
		}
		return t.syncPosition(ctx, tx)
	})
	if err != nil {
		slog.Error("could not record filled buy order; retrying on next tick", "order", order, "err", err)
		return t.errorf(ctx, err)
	}
	metrics.ObserveTrade(exchange.BUY, 0)
	slog.Info("recorded buy", "lot", lot.ID, "price", fillPrice, "qty", fillQty, "fee", order.Fee, "lot-qty", lot.Quantity, "target", lot.TargetPrice)
	t.notify(ctx, fmt.Sprintf("BUY %s %s @ %s (lot %d, target %s)", fillQty, t.opts.Symbol, fillPrice.StringFixed(2), lot.ID, lot.TargetPrice.StringFixed(2)))
	return nil
}

// onSellFilled records the sell trade and the strategy state in the
// transaction that closes or reduces the lot.
func (t *Trader) onSellFilled(ctx context.Context, tx *store.Tx, lot *gobs.Lot, order *exchange.Order) error {
	price, qty := order.FilledPrice(), order.FilledSize
	if !qty.IsPositive() {
		price, qty = lot.SellPrice, lot.Quantity
	}
	t.strategy.Resume(lot.AvgBuyPrice, qty)
	pnl, balance := t.strategy.OnSellExecuted(price, qty, order.Fee)
	trade := &gobs.Trade{
		Time:          t.now(),
		Side:          exchange.SELL,
		Price:         price,
		Quantity:      qty,
		Fee:           order.Fee,
		PnL:           pnl,
		BalanceAfter:  balance,
		ConfigID:      t.config.ID,
		OrderID:       order.OrderID,
		ClientOrderID: order.ClientOrderID,
		LotID:         lot.ID,
	}
	if _, err := tx.AppendTrade(ctx, trade); err != nil {
		return err
	}
	if err := t.syncPosition(ctx, tx); err != nil {
		return err
	}
	side := "SELL"
	if order.Status != exchange.FILLED {
		side = "PARTIAL SELL"
	}
	t.alerts = append(t.alerts, &alert{
		lotID:    lot.ID,
		clientID: lot.SellClientID,
		pnl:      pnl,
		msg:      fmt.Sprintf("%s %s %s @ %s (lot %d, pnl %s)", side, qty, t.opts.Symbol, price.StringFixed(2), lot.ID, pnl.StringFixed(4)),
	})
	return nil
}

// rotate applies a new trigger configuration when the bandit cadence is due.
func (t *Trader) rotate(ctx context.Context) error {
	choice, switched, err := t.bandit.Rotate(ctx, t.now())
	if err != nil {
		return err
	}
	if !switched && choice.Config.ID == t.config.ID {
		return nil
	}
	if err := t.strategy.SetConfig(choice.Config); err != nil {
		return err
	}
	t.config, t.reason = choice.Config, choice.Reason
	policy := "exploitation"
	if choice.Exploration {
		policy = "exploration"
	}
	metrics.IncConfigSwitches(policy)
	return nil
}
