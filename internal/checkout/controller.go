package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bher20/movein/internal/address"
	"github.com/bher20/movein/internal/documents"
	"github.com/bher20/movein/internal/eligibility"
	"github.com/bher20/movein/internal/faults"
	"github.com/bher20/movein/internal/logging"
	"github.com/bher20/movein/internal/pricing"
	"github.com/bher20/movein/internal/session"
	"github.com/bher20/movein/internal/upstream"
)

// ErrBusy is returned when an address change or reset is attempted while an
// order is being submitted.
var ErrBusy = errors.New("submission in progress")

// Resolver resolves an address to a confirmed meter.
type Resolver interface {
	Resolve(ctx context.Context, a address.Address) (address.Resolution, error)
	Confirm(ctx context.Context, cur address.Resolution, esiid string) (address.Resolution, error)
}

// PlanSource returns the plan catalog of one service.
type PlanSource interface {
	GetPlans(ctx context.Context, q upstream.CatalogQuery) ([]pricing.Plan, error)
}

// Inspector validates uploaded document content.
type Inspector func(name string, data []byte) (documents.Info, error)

// Deps are the collaborators of a Controller. Searcher may be nil when
// address search happens elsewhere.
type Deps struct {
	Searcher  *address.Searcher
	Resolver  Resolver
	Catalog   PlanSource
	Questions upstream.QuestionSource
	Submitter upstream.Submitter
	Identity  *session.Identity
}

// ConfirmationHook runs after a successful submission.
type ConfirmationHook func(ctx context.Context, c OrderConfirmation, s State)

// FailureHook runs after a failed submission.
type FailureHook func(ctx context.Context, err error, s State)

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }

// WithEligibilityMode picks the eligibility path of the session.
func WithEligibilityMode(m eligibility.Mode) Option { return func(c *Controller) { c.mode = m } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(c *Controller) { c.log = logging.OrNop(l) } }

// WithInspector replaces the document check.
func WithInspector(fn Inspector) Option { return func(c *Controller) { c.inspect = fn } }

// WithOrderIDs replaces the order id generator.
func WithOrderIDs(fn func() string) Option { return func(c *Controller) { c.newID = fn } }

// OnConfirmed registers a hook for successful submissions.
func OnConfirmed(h ConfirmationHook) Option {
	return func(c *Controller) { c.onConfirmed = append(c.onConfirmed, h) }
}

// OnFailure registers a hook for failed submissions.
func OnFailure(h FailureHook) Option {
	return func(c *Controller) { c.onFailure = append(c.onFailure, h) }
}

// Controller is the state container of one wizard session. All writes go
// through its mutex; network calls run outside it and commit atomically
// when they complete.
type Controller struct {
	deps    Deps
	mode    eligibility.Mode
	now     func() time.Time
	newID   func() string
	inspect Inspector
	log     *zap.Logger

	onConfirmed []ConfirmationHook
	onFailure   []FailureHook

	mu      sync.Mutex
	state   State
	files   map[string]upstream.File // by requirement id
	subs    map[int]func(State)
	nextSub int
}

// New creates a Controller in its initial state.
func New(deps Deps, opts ...Option) *Controller {
	c := &Controller{
		deps:    deps,
		mode:    eligibility.ModeDwelling,
		now:     time.Now,
		newID:   uuid.NewString,
		inspect: documents.Inspect,
		log:     zap.NewNop(),
		files:   make(map[string]upstream.File),
		subs:    make(map[int]func(State)),
	}
	for _, o := range opts {
		o(c)
	}
	if c.deps.Identity == nil {
		c.deps.Identity = session.NewIdentity()
	}
	c.state = initialState(c.mode)
	return c
}

// Mode returns the eligibility path of the session.
func (c *Controller) Mode() eligibility.Mode { return c.mode }

// Token returns the session token, regenerating it when absent.
func (c *Controller) Token() string { return c.deps.Identity.Token() }

// Snapshot returns a deep copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Subscribe registers fn to receive a snapshot after every committed change.
// The returned func removes the subscription.
func (c *Controller) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// update applies fn under the lock. When fn returns nil the change is
// committed and subscribers are notified; otherwise the state is restored.
func (c *Controller) update(fn func(s *State) error) error {
	c.mu.Lock()
	backup := c.state.clone()
	if err := fn(&c.state); err != nil {
		c.state = backup
		c.mu.Unlock()
		return err
	}
	snap := c.state.clone()
	subs := make([]func(State), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	return nil
}

// edit is update for user actions. While a submission is in flight they
// are refused with ErrBusy so the order cannot change under it.
func (c *Controller) edit(fn func(s *State) error) error {
	return c.update(func(s *State) error {
		if s.Submitting {
			return ErrBusy
		}
		return fn(s)
	})
}

// commitAsync applies the result of an async operation started under
// generation gen. It is dropped with faults.ErrStale when the address
// changed meanwhile.
func (c *Controller) commitAsync(gen uint64, fn func(s *State) error) error {
	return c.update(func(s *State) error {
		if s.Generation != gen {
			return faults.ErrStale
		}
		return fn(s)
	})
}

// today is the current date at midnight in the clock's location.
func (c *Controller) today() time.Time {
	n := c.now()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, n.Location())
}

// Advance moves to the next step when the current one is complete. It is a
// no-op on the confirmation step. The review step is only left by Submit.
func (c *Controller) Advance() error {
	return c.edit(func(s *State) error {
		if s.Step >= StepConfirmation {
			return nil
		}
		if err := c.stepComplete(s); err != nil {
			return err
		}
		s.Step++
		if s.Step > s.MaxReached {
			s.MaxReached = s.Step
		}
		return nil
	})
}

// Retreat moves one step back without discarding anything. It is a no-op
// on the first step and once the order is confirmed.
func (c *Controller) Retreat() error {
	return c.edit(func(s *State) error {
		if s.Step <= StepAddress || s.Confirmation != nil {
			return nil
		}
		s.Step--
		return nil
	})
}

// JumpTo moves to an already reached step, used by edit links on the review
// page. The confirmation step is only reachable with a confirmation.
func (c *Controller) JumpTo(step Step) error {
	return c.edit(func(s *State) error {
		switch {
		case step < StepAddress || step > StepConfirmation:
			return faults.NewValidation("step", "no such step")
		case step == StepConfirmation && s.Confirmation == nil:
			return faults.NewValidation("step", "the order has not been placed")
		case s.Confirmation != nil && step != StepConfirmation:
			return faults.NewValidation("step", "the order was already placed")
		case step > s.MaxReached:
			return faults.NewValidation("step", "step not reached yet")
		}
		s.Step = step
		return nil
	})
}

// Reset returns to the initial state. The session token is kept.
func (c *Controller) Reset() error {
	if c.deps.Searcher != nil {
		c.deps.Searcher.Cancel()
	}
	return c.edit(func(s *State) error {
		gen := s.Generation
		*s = initialState(c.mode)
		s.Generation = gen + 1
		c.files = make(map[string]upstream.File)
		return nil
	})
}

// stepComplete reports what is missing to leave the current step.
func (c *Controller) stepComplete(s *State) error {
	v := &faults.ValidationError{}
	switch s.Step {
	case StepAddress:
		if s.Address.IsZero() {
			v.Add("address", "enter the service address")
		} else if s.Resolution.Status != address.StatusConfirmed {
			v.Add("esiid", "confirm the meter for this address")
		}
		if s.MoveInDate.IsZero() {
			v.Add("moveInDate", "choose a move-in date")
		}
	case StepHome:
		if verdict := s.Eligibility.Verdict(); verdict.Blocked() {
			v.Add(string(verdict.Blocking), "answer this question to continue")
		}
	case StepServices:
		included := s.IncludedServices()
		if len(included) == 0 {
			v.Add("services", "choose at least one service")
		}
		for _, svc := range included {
			if s.SelectedPlans[svc] == "" {
				v.Add("plans."+string(svc), "choose a plan")
			}
		}
	case StepReview:
		v.Add("order", "submit the order to continue")
	}
	return v.OrNil()
}
