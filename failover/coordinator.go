// Package failover decides what a replica host does when its remote writer
// stops answering: do nothing (the master is fine), promote the local
// replica, or reattach to a newer master recorded in the arbiter.
//
// The decision compares what the local replica believes is its master with
// the newest arbiter record:
//
//	ping writer ok                 -> Healthy
//	replica link up                -> MasterUp
//	recorded == replica's master   -> Promote (nobody has taken over yet)
//	recorded != replica's master   -> Reattach to the recorded master
//
// Compare-then-insert against the arbiter is not atomic across hosts. Two
// replicas deciding at the same moment may both promote; the later record
// wins on the next attempt of every host.
package failover

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/arbiter"
	"github.com/unkn0wn-root/tiercache/replica"
)

const (
	defaultStaleAfter     = time.Hour
	defaultAttemptTimeout = 30 * time.Second

	descriptionPromoted     = "Master was down for %d seconds and last IO was %d seconds ago, change requested from ip:%s"
	descriptionInitializing = "Master is initializing"
)

type Outcome int

const (
	// OutcomeBusy: another attempt holds the guard.
	OutcomeBusy Outcome = iota
	OutcomeHealthy
	OutcomeMasterUp
	OutcomePromoted
	OutcomeReattached
	// OutcomeAborted: a step failed; nothing further was changed.
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeBusy:
		return "busy"
	case OutcomeHealthy:
		return "healthy"
	case OutcomeMasterUp:
		return "master_up"
	case OutcomePromoted:
		return "promoted"
	case OutcomeReattached:
		return "reattached"
	case OutcomeAborted:
		return "aborted"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Hooks observe finished attempts. Busy attempts report a zero duration.
type Hooks interface {
	Attempt(outcome Outcome, took time.Duration)
}

type NopHooks struct{}

func (NopHooks) Attempt(Outcome, time.Duration) {}

type Options struct {
	// Arbiter is required.
	Arbiter arbiter.Store
	// Deployment scopes arbiter records. Required.
	Deployment string

	// Resolver finds this host's address. Default: DefaultResolver("", "").
	Resolver Resolver
	// InstanceID is written as InsertedBy. Default: "tiercache-<uuid>".
	InstanceID string

	Now func() time.Time
	// StaleAfter is how long an attempt may hold the guard before the next
	// trigger displaces it. Default: 1h.
	StaleAfter time.Duration
	// AttemptTimeout bounds escalated attempts. Default: 30s.
	AttemptTimeout time.Duration

	Logger tiercache.Logger
	Hooks  Hooks
}

// Coordinator runs failover attempts for the replica clients of one host.
// It implements replica.Escalator.
type Coordinator struct {
	store          arbiter.Store
	deployment     string
	resolver       Resolver
	instanceID     string
	now            func() time.Time
	staleAfter     time.Duration
	attemptTimeout time.Duration
	log            tiercache.Logger
	hooks          Hooks

	guard guard
	wg    sync.WaitGroup
}

var _ replica.Escalator = (*Coordinator)(nil)

func New(opts Options) (*Coordinator, error) {
	if opts.Arbiter == nil {
		return nil, &tiercache.ConfigError{Field: "Arbiter", Reason: "is required"}
	}
	if strings.TrimSpace(opts.Deployment) == "" {
		return nil, &tiercache.ConfigError{Field: "Deployment", Reason: "is required"}
	}

	c := &Coordinator{
		store:          opts.Arbiter,
		deployment:     opts.Deployment,
		resolver:       opts.Resolver,
		instanceID:     opts.InstanceID,
		now:            opts.Now,
		staleAfter:     opts.StaleAfter,
		attemptTimeout: opts.AttemptTimeout,
		log:            tiercache.OrNop(opts.Logger),
		hooks:          opts.Hooks,
	}
	if c.resolver == nil {
		c.resolver = DefaultResolver("", "")
	}
	if c.instanceID == "" {
		c.instanceID = "tiercache-" + uuid.NewString()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.staleAfter <= 0 {
		c.staleAfter = defaultStaleAfter
	}
	if c.attemptTimeout <= 0 {
		c.attemptTimeout = defaultAttemptTimeout
	}
	if c.hooks == nil {
		c.hooks = NopHooks{}
	}
	return c, nil
}

func (c *Coordinator) InstanceID() string { return c.instanceID }

// Escalate starts an attempt in the background with its own timeout.
func (c *Coordinator) Escalate(t replica.Target, label string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.attemptTimeout)
		defer cancel()
		c.Run(ctx, t, label)
	}()
}

// Wait blocks until escalated attempts started so far have finished.
func (c *Coordinator) Wait() { c.wg.Wait() }

// Run performs one attempt for t. label names what triggered it.
func (c *Coordinator) Run(ctx context.Context, t replica.Target, label string) (outcome Outcome) {
	start := c.now()
	token, ok, displaced := c.guard.acquire(start, c.staleAfter)
	if !ok {
		c.log.Warn("failover already in progress", tiercache.Fields{"trigger": label})
		c.hooks.Attempt(OutcomeBusy, 0)
		return OutcomeBusy
	}
	if displaced {
		c.log.Warn("failover guard held too long, taking over", tiercache.Fields{
			"trigger": label, "stale_after": c.staleAfter.String(),
		})
	}

	defer func() {
		if r := recover(); r != nil {
			c.log.Error("failover attempt panicked", tiercache.Fields{"trigger": label, "panic": r})
			outcome = OutcomeAborted
		}
		c.guard.release(token)
		c.hooks.Attempt(outcome, c.now().Sub(start))
		c.log.Warn("failover attempt finished", tiercache.Fields{"trigger": label, "outcome": outcome.String()})
	}()

	return c.attempt(ctx, t, label)
}

type latestResult struct {
	rec   arbiter.Record
	found bool
	err   error
}

func (c *Coordinator) attempt(ctx context.Context, t replica.Target, label string) Outcome {
	writer := t.WriterAddr()
	c.log.Warn("failover check started", tiercache.Fields{"trigger": label, "writer": writer.String()})

	err := t.PingWriter(ctx)
	if err == nil {
		c.log.Warn("writer answered ping, nothing to do", tiercache.Fields{"writer": writer.String()})
		return OutcomeHealthy
	}
	c.log.Warn("writer ping failed", tiercache.Fields{"writer": writer.String(), "err": err})

	arbCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	latest := make(chan latestResult, 1)
	go func() {
		rec, found, err := c.store.Latest(arbCtx, c.deployment)
		latest <- latestResult{rec: rec, found: found, err: err}
	}()

	st, stErr := t.ReplicaStatus(ctx)
	if stErr != nil {
		c.log.Error("reading replica status failed", tiercache.Fields{"err": stErr})
	} else {
		c.log.Warn("replica status", tiercache.Fields{
			"master":          st.Master().Record(),
			"link":            st.Link.String(),
			"last_io_seconds": st.LastIOSecondsAgo,
			"down_seconds":    st.LinkDownSinceSeconds,
		})
		if st.Link == replica.LinkUp {
			cancel()
			c.log.Warn("replica link to master is up, ending failover", nil)
			return OutcomeMasterUp
		}
	}

	candidate := writer
	if stErr == nil && st.HasMaster() {
		candidate = st.Master()
	}

	var res latestResult
	select {
	case res = <-latest:
	case <-ctx.Done():
		c.log.Error("failover attempt timed out reading the arbiter", tiercache.Fields{"err": ctx.Err()})
		return OutcomeAborted
	}
	if res.err != nil {
		c.log.Error("reading arbiter failed", tiercache.Fields{"deployment": c.deployment, "err": res.err})
		return OutcomeAborted
	}
	if !res.found {
		c.log.Error("arbiter has no master record", tiercache.Fields{"deployment": c.deployment})
		return OutcomeAborted
	}
	recorded, err := replica.ParseAddr(res.rec.ServerHostPort)
	if err != nil {
		c.log.Error("invalid arbiter record", tiercache.Fields{"value": res.rec.ServerHostPort, "err": err})
		return OutcomeAborted
	}
	c.log.Warn("arbiter read completed", tiercache.Fields{"recorded": recorded.Record(), "candidate": candidate.Record()})

	if recorded.Equal(candidate) {
		return c.promote(ctx, t, st)
	}
	return c.reattach(ctx, t, recorded)
}

func (c *Coordinator) promote(ctx context.Context, t replica.Target, st replica.Status) Outcome {
	own, err := c.ownAddr(ctx, t)
	if err != nil {
		c.log.Error("resolving own address failed", tiercache.Fields{"err": err})
		return OutcomeAborted
	}
	if err := t.PromoteReader(ctx); err != nil {
		c.log.Error("promoting reader failed", tiercache.Fields{"err": err})
		return OutcomeAborted
	}
	c.log.Warn("promoting local replica", tiercache.Fields{"new_master": own.Record()})

	rec := arbiter.Record{
		ServerHostPort: own.Record(),
		InsertedBy:     c.instanceID,
		Description:    fmt.Sprintf(descriptionPromoted, st.LinkDownSinceSeconds, st.LastIOSecondsAgo, own.Host),
		Deployment:     c.deployment,
	}
	if err := c.store.Insert(ctx, rec); err != nil {
		c.log.Error("writing arbiter record failed", tiercache.Fields{"err": err})
		return OutcomeAborted
	}
	t.SwitchWriterTarget(own)
	return OutcomePromoted
}

func (c *Coordinator) reattach(ctx context.Context, t replica.Target, master replica.Addr) Outcome {
	if err := t.ReplicaOf(ctx, master); err != nil {
		c.log.Error("reattaching replica failed", tiercache.Fields{"master": master.Record(), "err": err})
		return OutcomeAborted
	}
	t.SwitchWriterTarget(master)
	c.log.Warn("switched to recorded master", tiercache.Fields{"master": master.Record()})
	return OutcomeReattached
}

// ownAddr is this host's resolved address with the reader's port.
func (c *Coordinator) ownAddr(ctx context.Context, t replica.Target) (replica.Addr, error) {
	host, err := c.resolver.Resolve(ctx)
	if err != nil {
		return replica.Addr{}, err
	}
	if host == "" {
		return replica.Addr{}, ErrNoAddress
	}
	return replica.Addr{Host: host, Port: t.ReaderAddr().Port}, nil
}
