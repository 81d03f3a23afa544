// Package escalation notifies emergency contacts once an episode
// becomes a medical emergency.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/synheart/synheart-seizure/internal/metrics"
	"github.com/synheart/synheart-seizure/internal/models"
)

// ErrNoContacts is reported when the directory is empty.
var ErrNoContacts = errors.New("no contacts configured")

// Progress messages shown to the caregiver UI.
const (
	MsgLocating      = "Getting precise location..."
	MsgAllNotified   = "All contacts notified."
	MsgNoContacts    = "Error: no contacts configured."
	msgNotifyingTmpl = "Notifying %s..."
)

// Dispatch orders.
const (
	OrderList         = "list"
	OrderPrimaryFirst = "primary-first"
)

// ContactDirectory lists the patient's emergency contacts in dispatch order.
type ContactDirectory interface {
	Contacts(ctx context.Context) ([]models.EmergencyContact, error)
}

// Channel delivers one message to one phone number.
type Channel interface {
	Send(ctx context.Context, phone, body string) error
}

// Request identifies the episode being escalated.
type Request struct {
	EpisodeID   string
	PatientName string
}

// Report is the final outcome of a run.
type Report struct {
	EpisodeID string
	Status    models.EscalationStatus
	Message   string
	Body      string
	Location  *Location
	Attempts  []models.EscalationAttempt
	Err       error
}

// Progress converts the report into its UI form.
func (r Report) Progress() models.EscalationProgress {
	return models.EscalationProgress{
		EpisodeID: r.EpisodeID,
		Status:    r.Status,
		Message:   r.Message,
		Attempts:  r.Attempts,
	}
}

// ProgressFunc receives every intermediate state of a run.
type ProgressFunc func(models.EscalationProgress)

// Config tunes the orchestrator.
type Config struct {
	LocationTimeout time.Duration
	SendTimeout     time.Duration
	DispatchOrder   string
}

// Orchestrator runs the escalation protocol. It holds no per-episode state;
// the caller guarantees it runs at most once per Status entry.
type Orchestrator struct {
	cfg       Config
	directory ContactDirectory
	locator   LocationProvider
	channel   Channel
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithNow overrides the attempt timestamp source.
func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator wires the collaborators. A nil locator behaves like NoLocator.
func NewOrchestrator(cfg Config, directory ContactDirectory, locator LocationProvider, channel Channel, opts ...Option) *Orchestrator {
	if cfg.LocationTimeout <= 0 {
		cfg.LocationTimeout = 10 * time.Second
	}
	if cfg.DispatchOrder == "" {
		cfg.DispatchOrder = OrderList
	}
	if locator == nil {
		locator = NoLocator{}
	}
	o := &Orchestrator{
		cfg:       cfg,
		directory: directory,
		locator:   locator,
		channel:   channel,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the protocol: load contacts, locate with a bounded wait,
// build one message and send it to every contact in order. A failed send
// is recorded and the loop continues.
func (o *Orchestrator) Run(ctx context.Context, req Request, progress ProgressFunc) Report {
	if progress == nil {
		progress = func(models.EscalationProgress) {}
	}
	log := o.logger.With(zap.String("episode_id", req.EpisodeID))
	report := Report{EpisodeID: req.EpisodeID}

	contacts, err := o.directory.Contacts(ctx)
	if err != nil {
		log.Error("load contacts failed", zap.Error(err))
		report.Status = models.EscalationConfigError
		report.Message = "Error: could not load contacts."
		report.Err = fmt.Errorf("load contacts: %w", err)
		progress(report.Progress())
		return report
	}
	if len(contacts) == 0 {
		log.Warn("escalation without contacts")
		report.Status = models.EscalationConfigError
		report.Message = MsgNoContacts
		report.Err = ErrNoContacts
		progress(report.Progress())
		return report
	}
	contacts = Order(contacts, o.cfg.DispatchOrder)

	report.Status = models.EscalationInProgress
	report.Message = MsgLocating
	progress(report.Progress())

	report.Location = o.locate(ctx)
	report.Body = BuildMessage(req.PatientName, report.Location)

	attempts := make([]models.EscalationAttempt, len(contacts))
	for i, c := range contacts {
		attempts[i] = models.EscalationAttempt{ContactID: c.ID, ContactName: c.Name, Status: models.AttemptPending}
	}

	for i, c := range contacts {
		report.Message = fmt.Sprintf(msgNotifyingTmpl, c.Name)
		report.Attempts = cloneAttempts(attempts)
		progress(report.Progress())

		attempts[i].AttemptedAt = o.now()
		if err := o.send(ctx, c.Phone, report.Body); err != nil {
			attempts[i].Status = models.AttemptFailed
			attempts[i].Error = err.Error()
			log.Warn("contact dispatch failed", zap.String("contact_id", c.ID), zap.Error(err))
		} else {
			attempts[i].Status = models.AttemptSent
			log.Info("contact notified", zap.String("contact_id", c.ID))
		}
		o.metrics.EscalationAttempt(string(attempts[i].Status))
	}

	report.Attempts = cloneAttempts(attempts)
	report.Status = models.ReduceAttempts(attempts)
	report.Message = MsgAllNotified
	if report.Status == models.EscalationPartialFailure {
		report.Message = "Could not reach: " + strings.Join(failedNames(attempts), ", ") + "."
	}
	progress(report.Progress())
	return report
}

func (o *Orchestrator) send(ctx context.Context, phone, body string) (err error) {
	if o.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.SendTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel panic: %v", r)
		}
	}()
	return o.channel.Send(ctx, phone, body)
}

// locate races the provider against the timeout. The provider runs in
// its own goroutine so one that ignores ctx still cannot block.
func (o *Orchestrator) locate(ctx context.Context) *Location {
	lctx, cancel := context.WithTimeout(ctx, o.cfg.LocationTimeout)
	defer cancel()

	result := make(chan *Location, 1)
	go func() {
		loc, err := o.locator.CurrentLocation(lctx)
		if err != nil {
			o.logger.Info("location unavailable", zap.Error(err))
			loc = nil
		}
		result <- loc
	}()

	select {
	case loc := <-result:
		return loc
	case <-lctx.Done():
		o.logger.Warn("location lookup timed out", zap.Duration("timeout", o.cfg.LocationTimeout))
		return nil
	}
}

// Order applies the dispatch policy. primary-first moves primary contacts
// to the front, keeping relative order otherwise.
func Order(contacts []models.EmergencyContact, policy string) []models.EmergencyContact {
	out := make([]models.EmergencyContact, len(contacts))
	copy(out, contacts)
	if policy == OrderPrimaryFirst {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Primary && !out[j].Primary })
	}
	return out
}

func cloneAttempts(a []models.EscalationAttempt) []models.EscalationAttempt {
	out := make([]models.EscalationAttempt, len(a))
	copy(out, a)
	return out
}

func failedNames(attempts []models.EscalationAttempt) []string {
	var names []string
	for _, a := range attempts {
		if a.Status == models.AttemptFailed {
			names = append(names, a.ContactName)
		}
	}
	return names
}
