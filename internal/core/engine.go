package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"CDPLedger/internal/dex"
	"CDPLedger/internal/event"
	"CDPLedger/internal/ledger"
	fpmath "CDPLedger/internal/math"
	"CDPLedger/internal/observability"
	"CDPLedger/internal/oracle"
	"CDPLedger/internal/state"
)

// DefaultAuthorizationDeposit is reserved from the owner's free native
// balance for every authorization grant (1.0 in fixed-point).
const DefaultAuthorizationDeposit int64 = fpmath.Unit

// globalCheckInterval controls how often the full zero-sum balance scan
// runs (every N applied events).
const globalCheckInterval = 1000

// Config carries the tunables of the deterministic core.
type Config struct {
	AuthorizationDeposit int64
	MaxSwapSlippage      int64
	IdempotencyCapacity  int
	SwapPartialPaths     [][]string
}

func DefaultConfig() Config {
	return Config{
		AuthorizationDeposit: DefaultAuthorizationDeposit,
		MaxSwapSlippage:      dex.DefaultMaxSlippage,
		IdempotencyCapacity:  100_000,
	}
}

// GrantUpdate describes an authorization grant row touched by an event,
// for downstream projections.
type GrantUpdate struct {
	Owner      uuid.UUID
	CurrencyID string
	Delegate   uuid.UUID
	Deposit    int64
	Revoked    bool
}

// CoreOutput is the unit emitted to the persistence and projection
// pipelines after an event is applied.
type CoreOutput struct {
	Envelope  event.EventEnvelope
	Batch     *ledger.Batch
	Positions []state.Position
	Grants    []GrantUpdate
}

// Command wraps an event submitted through the API surface. Reply
// receives exactly one result once the core has processed (or rejected)
// the event.
type Command struct {
	Event event.Event

	// AssignSource lets the core stamp the next contiguous source
	// sequence for the event's partition. HTTP-submitted commands use
	// this; stream-ingested events carry upstream sequences.
	AssignSource bool

	Reply chan CommandResult
}

// CommandResult is the synchronous outcome of a submitted command.
type CommandResult struct {
	Err       error
	Sequence  int64
	StateHash [32]byte

	// Position after the command, for loan commands. Nil when the
	// position was pruned or the command does not touch one.
	Position *state.Position
}

// DeterministicCore is the single-threaded command engine. All state it
// owns is mutated only from ProcessEvent; concurrency lives outside, in
// the ingestion and API layers feeding the command channel.
type DeterministicCore struct {
	sequence int64
	paused   bool

	hasher            *StateHasher
	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator

	balanceTracker *ledger.BalanceTracker
	journalGen     *ledger.JournalGenerator
	validator      *ledger.InvariantValidator

	positionLedger *state.PositionLedger
	riskEngine     *state.RiskEngine
	authRegistry   *state.AuthorizationRegistry
	priceTable     *oracle.PriceTable

	pathResolver *dex.PathResolver
	swapRouter   dex.SwapRouter

	authorizationDeposit int64
	maxSwapSlippage      int64

	// Per-event scratch, moved into CoreOutput after apply.
	pendingPositions []state.Position
	pendingGrants    []GrantUpdate

	persistChan    chan<- *CoreOutput
	projectionChan chan<- *CoreOutput

	metrics *observability.Metrics
}

func NewDeterministicCore(
	cfg Config,
	dbChecker DBIdempotencyChecker,
	swapRouter dex.SwapRouter,
	metrics *observability.Metrics,
	persistChan chan<- *CoreOutput,
	projectionChan chan<- *CoreOutput,
) *DeterministicCore {
	balanceTracker := ledger.NewBalanceTracker()

	if cfg.AuthorizationDeposit <= 0 {
		cfg.AuthorizationDeposit = DefaultAuthorizationDeposit
	}
	if cfg.MaxSwapSlippage <= 0 {
		cfg.MaxSwapSlippage = dex.DefaultMaxSlippage
	}
	if cfg.IdempotencyCapacity <= 0 {
		cfg.IdempotencyCapacity = 100_000
	}

	return &DeterministicCore{
		hasher:            NewStateHasher(),
		idempotency:       NewIdempotencyChecker(cfg.IdempotencyCapacity, dbChecker),
		sequenceValidator: NewSequenceValidator(),

		balanceTracker: balanceTracker,
		journalGen:     ledger.NewJournalGenerator(0, balanceTracker),
		validator:      ledger.NewInvariantValidator(balanceTracker),

		positionLedger: state.NewPositionLedger(),
		riskEngine:     state.NewRiskEngine(),
		authRegistry:   state.NewAuthorizationRegistry(),
		priceTable:     oracle.NewPriceTable(),

		pathResolver: dex.NewPathResolver("AUSD", cfg.SwapPartialPaths),
		swapRouter:   swapRouter,

		authorizationDeposit: cfg.AuthorizationDeposit,
		maxSwapSlippage:      cfg.MaxSwapSlippage,

		persistChan:    persistChan,
		projectionChan: projectionChan,
		metrics:        metrics,
	}
}

// ProcessEvent runs the full apply pipeline for one event:
// dedup -> sequence validation -> dispatch -> batch apply -> state hash
// -> emit -> invariant post-check. Any error leaves every store
// untouched.
func (c *DeterministicCore) ProcessEvent(evt event.Event) error {
	start := time.Now()
	eventType := evt.EventType().String()
	idemKey := evt.IdempotencyKey()

	isDuplicate := c.idempotency.IsDuplicate(eventType, idemKey)

	if p, ok := evt.(*event.PriceUpdate); ok {
		// Oracle stream tolerates gaps; stale updates are ignored
		// inside the price table.
		if err := c.sequenceValidator.ValidatePriceSequence(p.CurrencyID, p.PriceSequence); err != nil {
			c.recordRejected(eventType, "sequence")
			return fmt.Errorf("price sequence validation failed: %w", err)
		}
	} else {
		partition := getPartition(evt)
		if err := c.sequenceValidator.ValidateSequence(partition, evt.SourceSequence(), idemKey, isDuplicate); err != nil {
			c.recordRejected(eventType, "sequence")
			return fmt.Errorf("sequence validation failed: %w", err)
		}
	}

	if isDuplicate {
		c.recordRejected(eventType, "duplicate")
		return nil
	}

	c.pendingPositions = c.pendingPositions[:0]
	c.pendingGrants = c.pendingGrants[:0]
	c.journalGen.SetSequence(c.sequence)

	batch, err := c.dispatchEvent(evt)
	if err != nil {
		c.recordRejected(eventType, "validation")
		return err
	}

	if batch != nil && len(batch.Journals) > 0 {
		// A dispatch handler only returns a batch after every
		// validation passed, so failure here is a code defect.
		if err := c.validator.ValidateBatchBalance(batch); err != nil {
			panic(fmt.Sprintf("core generated unbalanced batch at seq %d: %v", c.sequence, err))
		}
		if err := c.balanceTracker.ApplyBatch(batch); err != nil {
			panic(fmt.Sprintf("core failed to apply batch at seq %d: %v", c.sequence, err))
		}
		if c.metrics != nil {
			for _, j := range batch.Journals {
				c.metrics.CoreJournals.WithLabelValues(j.JournalType.String()).Inc()
			}
		}
	}

	hashStart := time.Now()
	digest := c.computeStateDigest(batch)
	prevHash := c.hasher.GetPrevHash()
	stateHash := c.hasher.ComputeHash(c.sequence, digest)
	if c.metrics != nil {
		c.metrics.CoreStateHashDur.Observe(time.Since(hashStart).Seconds())
	}

	envelope := event.EventEnvelope{
		Sequence:       c.sequence,
		IdempotencyKey: idemKey,
		EventType:      evt.EventType(),
		Currency:       evt.Currency(),
		Timestamp:      time.UnixMicro(getEventTimestamp(evt)),
		SourceSequence: evt.SourceSequence(),
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}
	if payload, perr := json.Marshal(evt); perr == nil {
		envelope.Payload = payload
	}

	output := &CoreOutput{
		Envelope:  envelope,
		Batch:     batch,
		Positions: append([]state.Position(nil), c.pendingPositions...),
		Grants:    append([]GrantUpdate(nil), c.pendingGrants...),
	}

	c.sequence++

	c.postCheckInvariants(batch)

	// Durability path blocks; the projection path sheds load instead.
	if c.persistChan != nil {
		c.persistChan <- output
	}
	if c.projectionChan != nil {
		select {
		case c.projectionChan <- output:
		default:
			if c.metrics != nil {
				c.metrics.ProjectionDrops.WithLabelValues("core").Inc()
			}
		}
	}

	c.idempotency.MarkProcessed(eventType, idemKey)

	if c.metrics != nil {
		c.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		c.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
		c.recordLoanMetrics(evt)
	}

	return nil
}

func (c *DeterministicCore) recordLoanMetrics(evt event.Event) {
	cur := evt.Currency()
	if cur == nil {
		return
	}
	currency := *cur
	switch evt.(type) {
	case *event.AdjustLoan:
		c.metrics.LoanAdjustments.WithLabelValues(currency).Inc()
	case *event.TransferLoanFrom:
		c.metrics.LoanTransfers.WithLabelValues(currency).Inc()
	case *event.CloseLoanByDex:
		c.metrics.DexClosures.WithLabelValues(currency).Inc()
	default:
		return
	}
	totals := c.positionLedger.GetTotals(currency)
	c.metrics.CollateralLocked.WithLabelValues(currency).Set(float64(totals.TotalCollateral))
	c.metrics.DebitOutstanding.WithLabelValues(currency).Set(float64(totals.TotalDebit))
}

// Run consumes submitted commands until ctx is done. It is the only
// goroutine allowed to call ProcessEvent.
func (c *DeterministicCore) Run(done <-chan struct{}, commands <-chan Command) {
	for {
		select {
		case <-done:
			return
		case cmd, ok := <-commands:
			if !ok {
				return
			}
			if cmd.AssignSource {
				c.assignSourceSequence(cmd.Event)
			}
			err := c.ProcessEvent(cmd.Event)
			if cmd.Reply != nil {
				cmd.Reply <- c.buildResult(cmd.Event, err)
			}
		}
	}
}

func (c *DeterministicCore) buildResult(evt event.Event, err error) CommandResult {
	res := CommandResult{
		Err:       err,
		Sequence:  c.sequence,
		StateHash: c.hasher.GetPrevHash(),
	}
	if err != nil {
		return res
	}

	switch e := evt.(type) {
	case *event.AdjustLoan:
		res.Position = copyPosition(c.positionLedger.GetPosition(e.CurrencyID, e.Owner))
	case *event.TransferLoanFrom:
		res.Position = copyPosition(c.positionLedger.GetPosition(e.CurrencyID, e.Caller))
	case *event.CloseLoanByDex:
		res.Position = copyPosition(c.positionLedger.GetPosition(e.CurrencyID, e.Owner))
	}
	return res
}

func copyPosition(pos *state.Position) *state.Position {
	if pos == nil {
		return nil
	}
	cp := *pos
	return &cp
}

// assignSourceSequence stamps the next contiguous sequence for the
// event's partition onto a locally submitted command.
func (c *DeterministicCore) assignSourceSequence(evt event.Event) {
	next := c.sequenceValidator.GetExpectedSequence(getPartition(evt))
	switch e := evt.(type) {
	case *event.AdjustLoan:
		e.Sequence = next
	case *event.TransferLoanFrom:
		e.Sequence = next
	case *event.CloseLoanByDex:
		e.Sequence = next
	case *event.Authorize:
		e.Sequence = next
	case *event.Unauthorize:
		e.Sequence = next
	case *event.UnauthorizeAll:
		e.Sequence = next
	case *event.EmergencyPause:
		e.Sequence = next
	case *event.DepositConfirmed:
		e.Sequence = next
	case *event.WithdrawalConfirmed:
		e.Sequence = next
	}
}

func (c *DeterministicCore) dispatchEvent(evt event.Event) (*ledger.Batch, error) {
	switch e := evt.(type) {
	case *event.AdjustLoan:
		return c.handleAdjustLoan(e)
	case *event.TransferLoanFrom:
		return c.handleTransferLoanFrom(e)
	case *event.CloseLoanByDex:
		return c.handleCloseLoanByDex(e)
	case *event.Authorize:
		return c.handleAuthorize(e)
	case *event.Unauthorize:
		return c.handleUnauthorize(e)
	case *event.UnauthorizeAll:
		return c.handleUnauthorizeAll(e)
	case *event.DepositConfirmed:
		return c.handleDepositConfirmed(e)
	case *event.WithdrawalConfirmed:
		return c.handleWithdrawalConfirmed(e)
	case *event.PriceUpdate:
		return c.handlePriceUpdate(e)
	case *event.DebitRateAccrual:
		return c.handleDebitRateAccrual(e)
	case *event.RiskParamUpdate:
		return c.handleRiskParamUpdate(e)
	case *event.EmergencyPause:
		return c.handleEmergencyPause(e)
	default:
		return nil, fmt.Errorf("unhandled event type: %T", evt)
	}
}

// --- Loan commands ---

func (c *DeterministicCore) handleAdjustLoan(e *event.AdjustLoan) (*ledger.Batch, error) {
	if c.paused {
		return nil, state.ErrSystemPaused
	}
	assetID, ok := ledger.GetAssetID(e.CurrencyID)
	if !ok {
		return nil, state.ErrInvalidCurrency
	}
	if _, ok := c.riskEngine.GetRiskParams(e.CurrencyID); !ok {
		return nil, state.ErrInvalidCurrency
	}

	newCollateral, newDebit, err := c.positionLedger.PreviewAdjust(
		e.CurrencyID, e.Owner, e.CollateralDelta, e.DebitDelta)
	if err != nil {
		return nil, err
	}

	rate := c.riskEngine.GetDebitExchangeRate(e.CurrencyID)
	var debitValueDelta int64
	switch {
	case e.DebitDelta > 0:
		debitValueDelta = fpmath.MulRate(e.DebitDelta, rate)
	case e.DebitDelta < 0:
		debitValueDelta = -fpmath.MulRate(-e.DebitDelta, rate)
	}

	if newDebit > 0 {
		price, ok := c.priceTable.GetPrice(e.CurrencyID)
		if !ok {
			return nil, oracle.ErrNoPrice
		}
		if err := c.riskEngine.ValidatePosition(e.CurrencyID, price, newCollateral, newDebit); err != nil {
			return nil, err
		}
	}

	if e.DebitDelta > 0 {
		totals := c.positionLedger.GetTotals(e.CurrencyID)
		candidateTotal, err := fpmath.CheckedAdd(totals.TotalDebit, e.DebitDelta)
		if err != nil {
			return nil, err
		}
		if err := c.riskEngine.ValidateDebitCap(e.CurrencyID, candidateTotal); err != nil {
			return nil, err
		}
	}

	// Batch generation only reads balances; nothing is applied yet.
	batch, err := c.journalGen.GenerateAdjustLoan(
		e.Owner, e.RequestID, assetID, e.CollateralDelta, debitValueDelta, e.Timestamp)
	if err != nil {
		return nil, err
	}

	pos, err := c.positionLedger.CommitAdjust(e.CurrencyID, e.Owner, e.CollateralDelta, e.DebitDelta)
	if err != nil {
		return nil, err
	}
	c.pendingPositions = append(c.pendingPositions, *pos)

	return batch, nil
}

func (c *DeterministicCore) handleTransferLoanFrom(e *event.TransferLoanFrom) (*ledger.Batch, error) {
	if c.paused {
		return nil, state.ErrSystemPaused
	}
	if _, ok := c.riskEngine.GetRiskParams(e.CurrencyID); !ok {
		return nil, state.ErrInvalidCurrency
	}
	if !c.authRegistry.IsAuthorized(e.From, e.CurrencyID, e.Caller) {
		return nil, state.ErrNoPermission
	}

	src := c.positionLedger.GetPosition(e.CurrencyID, e.From)
	if src == nil || src.IsEmpty() {
		return nil, state.ErrNoPosition
	}

	// Transferring to oneself nets to a no-op.
	if e.Caller == e.From {
		return c.emptyBatch(e.RequestID, e.Timestamp), nil
	}

	var dstCollateral, dstDebit int64
	if dst := c.positionLedger.GetPosition(e.CurrencyID, e.Caller); dst != nil {
		dstCollateral = dst.Collateral
		dstDebit = dst.Debit
	}
	mergedCollateral, err := fpmath.CheckedAdd(dstCollateral, src.Collateral)
	if err != nil {
		return nil, err
	}
	mergedDebit, err := fpmath.CheckedAdd(dstDebit, src.Debit)
	if err != nil {
		return nil, err
	}

	if mergedDebit > 0 {
		price, ok := c.priceTable.GetPrice(e.CurrencyID)
		if !ok {
			return nil, oracle.ErrNoPrice
		}
		if err := c.riskEngine.ValidatePosition(e.CurrencyID, price, mergedCollateral, mergedDebit); err != nil {
			return nil, err
		}
	}

	if _, _, err := c.positionLedger.TransferPosition(e.CurrencyID, e.From, e.Caller); err != nil {
		return nil, err
	}

	c.pendingPositions = append(c.pendingPositions, *src)
	if dst := c.positionLedger.GetPosition(e.CurrencyID, e.Caller); dst != nil {
		c.pendingPositions = append(c.pendingPositions, *dst)
	}

	// Collateral stays inside the pool: no balance legs.
	return c.emptyBatch(e.RequestID, e.Timestamp), nil
}

func (c *DeterministicCore) handleCloseLoanByDex(e *event.CloseLoanByDex) (*ledger.Batch, error) {
	if c.paused {
		return nil, state.ErrSystemPaused
	}
	assetID, ok := ledger.GetAssetID(e.CurrencyID)
	if !ok {
		return nil, state.ErrInvalidCurrency
	}
	if _, ok := c.riskEngine.GetRiskParams(e.CurrencyID); !ok {
		return nil, state.ErrInvalidCurrency
	}

	pos := c.positionLedger.GetPosition(e.CurrencyID, e.Owner)
	if pos == nil || pos.IsEmpty() {
		return nil, state.ErrNoPosition
	}
	if !pos.HasDebit() {
		return nil, state.ErrNoDebit
	}
	if e.MaxCollateralAmount <= 0 || e.MaxCollateralAmount > pos.Collateral {
		return nil, fmt.Errorf("%w: max collateral %d exceeds position collateral %d",
			ledger.ErrInsufficientBalance, e.MaxCollateralAmount, pos.Collateral)
	}

	path := e.Path
	if len(path) > 0 {
		if err := c.pathResolver.ValidatePath(path, e.CurrencyID); err != nil {
			return nil, err
		}
	} else {
		var err error
		path, err = c.pathResolver.ResolveDefaultPath(e.CurrencyID)
		if err != nil {
			return nil, err
		}
	}

	price, ok := c.priceTable.GetPrice(e.CurrencyID)
	if !ok {
		return nil, oracle.ErrNoPrice
	}

	targetDebtValue := c.riskEngine.DebitValue(e.CurrencyID, pos.Debit)

	// Fold the oracle bound into maxIn so a swap that would breach it
	// never executes.
	maxIn := e.MaxCollateralAmount
	if bound := dex.MaxInputForSlippage(targetDebtValue, price, c.maxSwapSlippage); bound < maxIn {
		maxIn = bound
	}

	amountIn, err := c.swapRouter.SwapWithExactTarget(path, targetDebtValue, maxIn)
	if err != nil {
		return nil, err
	}

	batch, err := c.journalGen.GenerateCloseLoanByDex(
		e.Owner, e.RequestID, assetID, amountIn, targetDebtValue, e.Timestamp)
	if err != nil {
		return nil, err
	}

	newPos, err := c.positionLedger.CommitAdjust(e.CurrencyID, e.Owner, -amountIn, -pos.Debit)
	if err != nil {
		return nil, err
	}
	c.pendingPositions = append(c.pendingPositions, *newPos)

	return batch, nil
}

// --- Authorization commands ---

func (c *DeterministicCore) handleAuthorize(e *event.Authorize) (*ledger.Batch, error) {
	if c.paused {
		return nil, state.ErrSystemPaused
	}
	if _, ok := c.riskEngine.GetRiskParams(e.CurrencyID); !ok {
		return nil, state.ErrInvalidCurrency
	}

	if c.authRegistry.IsAuthorized(e.Owner, e.CurrencyID, e.Delegate) {
		// Re-authorizing the same triple never double-reserves.
		return c.emptyBatch(e.RequestID, e.Timestamp), nil
	}

	batch, err := c.journalGen.GenerateAuthorizeDeposit(
		e.Owner, e.RequestID, c.authorizationDeposit, e.Timestamp)
	if err != nil {
		return nil, err
	}

	c.authRegistry.Grant(e.Owner, e.CurrencyID, e.Delegate, c.authorizationDeposit)
	c.pendingGrants = append(c.pendingGrants, GrantUpdate{
		Owner:      e.Owner,
		CurrencyID: e.CurrencyID,
		Delegate:   e.Delegate,
		Deposit:    c.authorizationDeposit,
	})

	return batch, nil
}

func (c *DeterministicCore) handleUnauthorize(e *event.Unauthorize) (*ledger.Batch, error) {
	if c.paused {
		return nil, state.ErrSystemPaused
	}

	deposit, ok := c.authRegistry.GetGrantDeposit(e.Owner, e.CurrencyID, e.Delegate)
	if !ok {
		return nil, state.ErrNotAuthorized
	}

	batch, err := c.journalGen.GenerateUnauthorizeRefund(e.Owner, e.RequestID, deposit, e.Timestamp)
	if err != nil {
		return nil, err
	}

	if _, err := c.authRegistry.Revoke(e.Owner, e.CurrencyID, e.Delegate); err != nil {
		return nil, err
	}
	c.pendingGrants = append(c.pendingGrants, GrantUpdate{
		Owner:      e.Owner,
		CurrencyID: e.CurrencyID,
		Delegate:   e.Delegate,
		Revoked:    true,
	})

	return batch, nil
}

func (c *DeterministicCore) handleUnauthorizeAll(e *event.UnauthorizeAll) (*ledger.Batch, error) {
	if c.paused {
		return nil, state.ErrSystemPaused
	}

	grants := c.authRegistry.GetOwnerGrants(e.Owner)
	var total int64
	var revoked []GrantUpdate
	for key, deposit := range grants {
		total += deposit
		revoked = append(revoked, GrantUpdate{
			Owner:      key.Owner,
			CurrencyID: key.CurrencyID,
			Delegate:   key.Delegate,
			Revoked:    true,
		})
	}

	if total == 0 {
		// Nothing to revoke still succeeds.
		return c.emptyBatch(e.RequestID, e.Timestamp), nil
	}

	batch, err := c.journalGen.GenerateUnauthorizeRefund(e.Owner, e.RequestID, total, e.Timestamp)
	if err != nil {
		return nil, err
	}

	c.authRegistry.RevokeAll(e.Owner)

	// Deterministic ordering for the projection stream.
	sort.Slice(revoked, func(i, j int) bool {
		if revoked[i].CurrencyID != revoked[j].CurrencyID {
			return revoked[i].CurrencyID < revoked[j].CurrencyID
		}
		return revoked[i].Delegate.String() < revoked[j].Delegate.String()
	})
	c.pendingGrants = append(c.pendingGrants, revoked...)

	return batch, nil
}

// --- Funding boundary ---

func (c *DeterministicCore) handleDepositConfirmed(e *event.DepositConfirmed) (*ledger.Batch, error) {
	assetID, ok := ledger.GetAssetID(e.Asset)
	if !ok {
		return nil, state.ErrInvalidCurrency
	}
	return c.journalGen.GenerateDeposit(e, assetID, e.Timestamp)
}

func (c *DeterministicCore) handleWithdrawalConfirmed(e *event.WithdrawalConfirmed) (*ledger.Batch, error) {
	assetID, ok := ledger.GetAssetID(e.Asset)
	if !ok {
		return nil, state.ErrInvalidCurrency
	}
	return c.journalGen.GenerateWithdrawal(e, assetID, e.Timestamp)
}

// --- Reference data streams ---

func (c *DeterministicCore) handlePriceUpdate(e *event.PriceUpdate) (*ledger.Batch, error) {
	c.priceTable.UpdatePrice(e.CurrencyID, e.Price, e.PriceSequence, e.PriceTimestamp)
	return nil, nil
}

func (c *DeterministicCore) handleDebitRateAccrual(e *event.DebitRateAccrual) (*ledger.Batch, error) {
	if err := c.riskEngine.AccrueDebitRate(e.CurrencyID, e.Rate); err != nil {
		return nil, err
	}
	return nil, nil
}

func (c *DeterministicCore) handleRiskParamUpdate(e *event.RiskParamUpdate) (*ledger.Batch, error) {
	params := &state.RiskParams{
		CurrencyID:              e.CurrencyID,
		MaxTotalDebitValue:      e.MaxTotalDebitValue,
		RequiredCollateralRatio: e.RequiredCollateralRatio,
		LiquidationRatio:        e.LiquidationRatio,
		LiquidationPenalty:      e.LiquidationPenalty,
		StabilityFeeRate:        e.StabilityFeeRate,
		MinimumDebitValue:       e.MinimumDebitValue,
		EffectiveSeq:            e.EffectiveSeq,
	}
	if err := c.riskEngine.UpdateRiskParams(params); err != nil {
		return nil, err
	}
	return nil, nil
}

func (c *DeterministicCore) handleEmergencyPause(e *event.EmergencyPause) (*ledger.Batch, error) {
	c.paused = e.Paused
	return nil, nil
}

// emptyBatch carries the envelope of a state-only command through the
// persistence pipeline with no balance legs.
func (c *DeterministicCore) emptyBatch(requestID uuid.UUID, timestamp int64) *ledger.Batch {
	return &ledger.Batch{
		BatchID:   uuid.New(),
		EventRef:  requestID.String(),
		Sequence:  c.sequence,
		Timestamp: timestamp,
	}
}

// --- Pipeline internals ---

func getPartition(evt event.Event) string {
	switch e := evt.(type) {
	case *event.PriceUpdate:
		return "price:" + e.CurrencyID
	case *event.DebitRateAccrual:
		return "rate:" + e.CurrencyID
	case *event.RiskParamUpdate:
		return "risk:" + e.CurrencyID
	case *event.DepositConfirmed, *event.WithdrawalConfirmed:
		return "funding"
	}
	if cur := evt.Currency(); cur != nil {
		return "currency:" + *cur
	}
	return "global"
}

// getEventTimestamp extracts the versioned input timestamp. The core
// never reads wall-clock time; an unhandled type here is a defect.
func getEventTimestamp(evt event.Event) int64 {
	switch e := evt.(type) {
	case *event.AdjustLoan:
		return e.Timestamp
	case *event.TransferLoanFrom:
		return e.Timestamp
	case *event.CloseLoanByDex:
		return e.Timestamp
	case *event.Authorize:
		return e.Timestamp
	case *event.Unauthorize:
		return e.Timestamp
	case *event.UnauthorizeAll:
		return e.Timestamp
	case *event.DepositConfirmed:
		return e.Timestamp
	case *event.WithdrawalConfirmed:
		return e.Timestamp
	case *event.PriceUpdate:
		return e.PriceTimestamp
	case *event.DebitRateAccrual:
		return e.Timestamp
	case *event.RiskParamUpdate:
		return e.Timestamp
	case *event.EmergencyPause:
		return e.Timestamp
	default:
		panic(fmt.Sprintf("deterministic core cannot use wall-clock time: unhandled event type %T", evt))
	}
}

// computeStateDigest builds the deterministic digest hashed into the
// chain: post-apply balances of every account the batch touched, then
// canonical bytes of every position and grant the event touched, all in
// sorted order.
func (c *DeterministicCore) computeStateDigest(batch *ledger.Batch) []byte {
	var accounts []ledger.AccountKey
	if batch != nil {
		seen := make(map[ledger.AccountKey]struct{}, len(batch.Journals)*2)
		for _, j := range batch.Journals {
			if _, ok := seen[j.DebitAccount]; !ok {
				seen[j.DebitAccount] = struct{}{}
				accounts = append(accounts, j.DebitAccount)
			}
			if _, ok := seen[j.CreditAccount]; !ok {
				seen[j.CreditAccount] = struct{}{}
				accounts = append(accounts, j.CreditAccount)
			}
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})

	var digest []byte
	for _, key := range accounts {
		path := key.AccountPath()
		digest = appendUint32LE(digest, uint32(len(path)))
		digest = append(digest, path...)
		digest = appendInt64LE(digest, c.balanceTracker.GetBalance(key))
	}

	for i := range c.pendingPositions {
		digest = append(digest, c.pendingPositions[i].CanonicalBytes()...)
	}

	for _, g := range c.pendingGrants {
		key := fmt.Sprintf("grant:%s:%s:%s", g.Owner, g.CurrencyID, g.Delegate)
		digest = appendUint32LE(digest, uint32(len(key)))
		digest = append(digest, key...)
		digest = appendInt64LE(digest, g.Deposit)
		if g.Revoked {
			digest = append(digest, 1)
		} else {
			digest = append(digest, 0)
		}
	}

	return digest
}

func appendUint32LE(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func appendInt64LE(buf []byte, v int64) []byte {
	u := uint64(v)
	return append(buf,
		byte(u), byte(u>>8), byte(u>>16), byte(u>>24),
		byte(u>>32), byte(u>>40), byte(u>>48), byte(u>>56))
}

// postCheckInvariants panics on violations: a broken store must halt
// the core rather than persist corrupt state.
func (c *DeterministicCore) postCheckInvariants(batch *ledger.Batch) {
	if batch != nil {
		for _, j := range batch.Journals {
			for _, key := range [2]ledger.AccountKey{j.DebitAccount, j.CreditAccount} {
				if key.Scope != ledger.AccountScopeExternal {
					if err := c.balanceTracker.ValidateNonNegative(key); err != nil {
						panic(fmt.Sprintf("invariant violation at seq %d: %v", c.sequence, err))
					}
				}
			}
		}
	}

	if c.sequence%globalCheckInterval == 0 {
		if err := c.validator.ValidateGlobalBalance(); err != nil {
			panic(fmt.Sprintf("global balance invariant violation at seq %d: %v", c.sequence, err))
		}
	}
}

func (c *DeterministicCore) recordRejected(eventType, reason string) {
	if c.metrics != nil {
		c.metrics.CoreEventsRejected.WithLabelValues(eventType, reason).Inc()
	}
}

// --- Accessors (single-threaded callers only) ---

func (c *DeterministicCore) GetSequence() int64 {
	return c.sequence
}

func (c *DeterministicCore) GetStateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

func (c *DeterministicCore) IsPaused() bool {
	return c.paused
}

func (c *DeterministicCore) Balances() *ledger.BalanceTracker {
	return c.balanceTracker
}

func (c *DeterministicCore) Positions() *state.PositionLedger {
	return c.positionLedger
}

func (c *DeterministicCore) Risk() *state.RiskEngine {
	return c.riskEngine
}

func (c *DeterministicCore) Grants() *state.AuthorizationRegistry {
	return c.authRegistry
}

func (c *DeterministicCore) Prices() *oracle.PriceTable {
	return c.priceTable
}
