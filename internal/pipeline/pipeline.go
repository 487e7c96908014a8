package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	ierr "main/internal/errors"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/safety"
	"main/internal/staleness"
	"main/pkg/exception"
)

// Phase tracks the submission state machine:
// Drafting -> Previewing -> Confirming -> Submitted | Rejected | Aborted.
type Phase uint8

const (
	PhaseDrafting Phase = iota
	PhasePreviewing
	PhaseConfirming
	PhaseSubmitted
	PhaseRejected
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseDrafting:
		return "drafting"
	case PhasePreviewing:
		return "previewing"
	case PhaseConfirming:
		return "confirming"
	case PhaseSubmitted:
		return "submitted"
	case PhaseRejected:
		return "rejected"
	case PhaseAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// MarketView exposes the coordinator's cached snapshots plus connection state.
type MarketView interface {
	AllPositions() model.FieldSnapshot[[]model.Position]
	LastPrice(symbol string) model.FieldSnapshot[decimal.Decimal]
	BuyingPower() model.FieldSnapshot[decimal.Decimal]
	RiskLimits() model.FieldSnapshot[model.RiskLimits]
	ConnectionState() enum.ConnectionState
}

// SafetyGate is the slice of the safety tracker the pipeline consults.
type SafetyGate interface {
	CheckCached() error
	FetchAuthoritative(ctx context.Context) (ks, cb model.SafetyState, err error)
}

// SubmitReceipt is the broker's acknowledgment of a submitted order.
type SubmitReceipt struct {
	OrderID     string
	Status      string
	SubmittedAt time.Time
}

// Gateway performs the confirm-time fresh fetches and the final submission.
// Every snapshot's ObservedAt carries the server-assigned timestamp; a
// response without one yields an unusable snapshot, never local wall clock.
type Gateway interface {
	FetchPositions(ctx context.Context) (model.FieldSnapshot[[]model.Position], error)
	FetchBuyingPower(ctx context.Context) (model.FieldSnapshot[decimal.Decimal], error)
	FetchRiskLimits(ctx context.Context) (model.FieldSnapshot[model.RiskLimits], error)
	SubmitOrder(ctx context.Context, intent model.OrderIntent) (SubmitReceipt, error)
}

// IntentStore persists the pending draft intent for crash/reconnect recovery.
type IntentStore interface {
	Save(ctx context.Context, sessionID string, intent model.OrderIntent) error
	Delete(ctx context.Context, sessionID string) error
}

// Pipeline converts a validated order form into a submitted order exactly
// once per distinct intent, never bypassing safety state. One pipeline serves
// one order-entry session.
type Pipeline struct {
	sessionID string
	view      MarketView
	safety    SafetyGate
	gateway   Gateway
	store     IntentStore
	policy    staleness.Policy
	now       func() time.Time

	mu     sync.Mutex
	phase  Phase
	intent *model.OrderIntent
}

// New creates a pipeline in the Drafting phase.
func New(sessionID string, view MarketView, gate SafetyGate, gateway Gateway, store IntentStore, policy staleness.Policy) *Pipeline {
	return &Pipeline{
		sessionID: sessionID,
		view:      view,
		safety:    gate,
		gateway:   gateway,
		store:     store,
		policy:    policy.Normalized(),
		now:       time.Now,
	}
}

// Phase returns the current state-machine phase.
func (p *Pipeline) Phase() Phase {
	p.mu.Lock()
	phase := p.phase
	p.mu.Unlock()
	return phase
}

// Intent returns the current draft intent, if any.
func (p *Pipeline) Intent() (model.OrderIntent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.intent == nil {
		return model.OrderIntent{}, false
	}
	return *p.intent, true
}

// RecoverDraft seeds the pipeline with a persisted intent from a previous
// session. The draft only shortcuts intent rotation; it grants no validation.
func (p *Pipeline) RecoverDraft(intent model.OrderIntent) {
	p.mu.Lock()
	if p.phase == PhaseDrafting && p.intent == nil {
		p.intent = &intent
	}
	p.mu.Unlock()
}

// Preview runs the cached safety check over form and, on success, obtains or
// creates the order intent. No network call is made. Any failure aborts with
// a specific reason.
func (p *Pipeline) Preview(ctx context.Context, form model.OrderForm) (model.OrderIntent, error) {
	p.mu.Lock()
	if p.phase == PhaseConfirming {
		p.mu.Unlock()
		return model.OrderIntent{}, ierr.Invariant(exception.ErrOrderAlreadyConfirming, "")
	}
	p.mu.Unlock()

	if err := validateForm(form); err != nil {
		p.abort(err)
		return model.OrderIntent{}, err
	}
	if err := p.safety.CheckCached(); err != nil {
		p.abort(err)
		return model.OrderIntent{}, err
	}

	in := validationInput{
		positions:   p.view.AllPositions(),
		lastPrice:   p.view.LastPrice(form.Symbol),
		buyingPower: p.view.BuyingPower(),
		riskLimits:  p.view.RiskLimits(),
	}
	if err := p.validate(form, in, p.now()); err != nil {
		p.abort(err)
		return model.OrderIntent{}, err
	}

	intent := p.ensureIntent(ctx, form)

	p.mu.Lock()
	p.phase = PhasePreviewing
	p.mu.Unlock()
	return intent, nil
}

// Confirm re-runs every check against freshly fetched data, performs the
// authoritative safety fetch, applies the final pre-dispatch gate, and only
// then submits the order carrying the intent ID as idempotency key.
func (p *Pipeline) Confirm(ctx context.Context) (SubmitReceipt, error) {
	p.mu.Lock()
	if p.phase != PhasePreviewing || p.intent == nil {
		p.mu.Unlock()
		return SubmitReceipt{}, ierr.Invariant(exception.ErrOrderNotPreviewed, "phase "+p.phase.String())
	}
	p.phase = PhaseConfirming
	intent := *p.intent
	p.mu.Unlock()

	in, err := p.fetchFresh(ctx, intent.Form.Symbol)
	if err != nil {
		p.reject(err)
		return SubmitReceipt{}, err
	}
	if err := p.validate(intent.Form, in, p.now()); err != nil {
		p.reject(err)
		return SubmitReceipt{}, err
	}

	// cached state is never trusted at this step
	ks, cb, err := p.safety.FetchAuthoritative(ctx)
	if err != nil {
		p.reject(err)
		return SubmitReceipt{}, err
	}
	if err := safety.CheckStates(ks, cb); err != nil {
		p.reject(err)
		return SubmitReceipt{}, err
	}

	// final gate, closing the race between confirm-time validation and
	// network dispatch
	if err := p.safety.CheckCached(); err != nil {
		p.reject(err)
		return SubmitReceipt{}, err
	}
	if state := p.view.ConnectionState(); !state.Usable() {
		err := ierr.Blocked(exception.ErrConnectionNotUsable, "connection state "+state.String())
		p.reject(err)
		return SubmitReceipt{}, err
	}

	receipt, err := p.gateway.SubmitOrder(ctx, intent)
	if err != nil {
		// the intent is kept so a retry reuses the same idempotency key
		err = ierr.Transient(exception.ErrOrderSubmitFailed, err.Error())
		p.reject(err)
		return SubmitReceipt{}, err
	}

	p.mu.Lock()
	p.phase = PhaseSubmitted
	p.intent = nil
	p.mu.Unlock()
	if derr := p.store.Delete(ctx, p.sessionID); derr != nil {
		logs.Errorf("delete draft intent for session %s, err: %+v", p.sessionID, derr)
	}
	logs.Infof("order submitted session=%s intent=%s order=%s", p.sessionID, intent.ID, receipt.OrderID)
	return receipt, nil
}

// Reset returns the state machine to Drafting without touching the intent,
// so an unmodified form keeps its idempotency key.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	if p.phase != PhaseConfirming {
		p.phase = PhaseDrafting
	}
	p.mu.Unlock()
}

// ensureIntent reuses the current intent when the form is unchanged,
// otherwise rotates to a fresh one and invalidates the persisted draft.
func (p *Pipeline) ensureIntent(ctx context.Context, form model.OrderForm) model.OrderIntent {
	p.mu.Lock()
	if p.intent != nil && p.intent.Form.Equal(form) {
		intent := *p.intent
		p.mu.Unlock()
		return intent
	}
	intent := model.OrderIntent{
		ID:        uuid.NewString(),
		Form:      form,
		CreatedAt: p.now(),
	}
	p.intent = &intent
	p.mu.Unlock()

	// draft persistence is for crash recovery only; a failure here must not
	// block the order flow
	if err := p.store.Save(ctx, p.sessionID, intent); err != nil {
		logs.Errorf("persist draft intent for session %s, err: %+v", p.sessionID, err)
	}
	return intent
}

// fetchFresh re-fetches positions, buying power and risk limits; last price
// comes from the live stream cache. Fetch failures surface as transient
// errors because the block stems from inability to verify.
func (p *Pipeline) fetchFresh(ctx context.Context, symbol string) (validationInput, error) {
	var (
		wg       sync.WaitGroup
		in       validationInput
		posErr   error
		bpErr    error
		limitErr error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		in.positions, posErr = p.gateway.FetchPositions(ctx)
	}()
	go func() {
		defer wg.Done()
		in.buyingPower, bpErr = p.gateway.FetchBuyingPower(ctx)
	}()
	go func() {
		defer wg.Done()
		in.riskLimits, limitErr = p.gateway.FetchRiskLimits(ctx)
	}()
	wg.Wait()

	if posErr != nil {
		return in, ierr.Transient(posErr, "fetch positions; cannot verify position limits")
	}
	if bpErr != nil {
		return in, ierr.Transient(bpErr, "fetch account; cannot verify buying power")
	}
	if limitErr != nil {
		return in, ierr.Transient(limitErr, "fetch risk limits; cannot verify limits")
	}

	in.lastPrice = p.view.LastPrice(symbol)
	return in, nil
}

func (p *Pipeline) abort(err error) {
	p.mu.Lock()
	p.phase = PhaseAborted
	p.mu.Unlock()
	logs.Infof("preview aborted session=%s: %v", p.sessionID, err)
}

func (p *Pipeline) reject(err error) {
	p.mu.Lock()
	p.phase = PhaseRejected
	p.mu.Unlock()
	logs.Infof("confirm rejected session=%s: %v", p.sessionID, err)
}
