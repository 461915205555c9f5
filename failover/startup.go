package failover

import (
	"context"
	"fmt"
	"strings"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/arbiter"
	"github.com/unkn0wn-root/tiercache/replica"
)

// Startup seeds t's writer from the arbiter and then runs one attempt
// synchronously. It has the signature of replica.Options.Startup.
//
// With no record yet, the local reader becomes the first master. With a
// record that differs from the configured writer, the reader is promoted
// when the record names this host and reattached to it otherwise.
func (c *Coordinator) Startup(ctx context.Context, t replica.Target) error {
	rec, found, err := c.store.Latest(ctx, c.deployment)
	if err != nil {
		return fmt.Errorf("failover: reading arbiter: %w", err)
	}

	if !found {
		if err := c.bootstrap(ctx, t); err != nil {
			return err
		}
	} else if err := c.align(ctx, t, rec); err != nil {
		return err
	}

	outcome := c.Run(ctx, t, "(startup)")
	c.log.Info("startup check finished", tiercache.Fields{
		"writer": t.WriterAddr().String(), "outcome": outcome.String(),
	})
	return nil
}

func (c *Coordinator) bootstrap(ctx context.Context, t replica.Target) error {
	own, err := c.ownAddr(ctx, t)
	if err != nil {
		return fmt.Errorf("failover: bootstrap: %w", err)
	}
	c.log.Warn("arbiter is empty, local replica becomes master", tiercache.Fields{
		"deployment": c.deployment, "master": own.Record(),
	})
	if err := t.PromoteReader(ctx); err != nil {
		return fmt.Errorf("failover: bootstrap: promote: %w", err)
	}
	err = c.store.Insert(ctx, arbiter.Record{
		ServerHostPort: own.Record(),
		InsertedBy:     c.instanceID,
		Description:    descriptionInitializing,
		Deployment:     c.deployment,
	})
	if err != nil {
		return fmt.Errorf("failover: bootstrap: insert: %w", err)
	}
	t.SwitchWriterTarget(own)
	return nil
}

// align points t at the recorded master when the configured writer is
// not it.
func (c *Coordinator) align(ctx context.Context, t replica.Target, rec arbiter.Record) error {
	recorded, err := replica.ParseAddr(rec.ServerHostPort)
	if err != nil {
		return fmt.Errorf("failover: invalid arbiter record %q: %w", rec.ServerHostPort, err)
	}
	if recorded.Equal(t.WriterAddr()) {
		return nil
	}

	own, err := c.ownAddr(ctx, t)
	if err != nil {
		c.log.Warn("resolving own address failed", tiercache.Fields{"err": err})
	}
	if err == nil && strings.EqualFold(own.Host, recorded.Host) {
		c.log.Warn("arbiter names this host as master", tiercache.Fields{"master": recorded.Record()})
		if err := t.PromoteReader(ctx); err != nil {
			return fmt.Errorf("failover: promote: %w", err)
		}
	} else {
		c.log.Warn("configured writer differs from arbiter, reattaching", tiercache.Fields{
			"configured": t.WriterAddr().Record(), "master": recorded.Record(),
		})
		if err := t.ReplicaOf(ctx, recorded); err != nil {
			return fmt.Errorf("failover: reattach: %w", err)
		}
	}
	t.SwitchWriterTarget(recorded)
	return nil
}
