// Package sloghooks logs tiercache.Hooks events through log/slog, with
// sampling for the high-volume hit/miss events and key redaction.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/tiercache"
)

type Options struct {
	// Sampling to avoid floods; 0 = drop, 1 = log all.
	HitEvery  uint64
	MissEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	hitCtr  atomic.Uint64
	missCtr atomic.Uint64
}

var _ tiercache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	switch n {
	case 0:
		return false
	case 1:
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Hit(tier tiercache.TierName, key string) {
	if h.l == nil || !sample(h.opts.HitEvery, &h.hitCtr) {
		return
	}
	h.l.Debug("tiercache.hit", "tier", string(tier), "key", h.redact(key))
}

func (h *Hooks) Miss(tier tiercache.TierName, key string) {
	if h.l == nil || !sample(h.opts.MissEvery, &h.missCtr) {
		return
	}
	h.l.Debug("tiercache.miss", "tier", string(tier), "key", h.redact(key))
}

func (h *Hooks) ExtendStarted(tier tiercache.TierName, key string) {
	if h.l == nil {
		return
	}
	h.l.Info("tiercache.extend_started", "tier", string(tier), "key", h.redact(key))
}

func (h *Hooks) ExtendFailed(tier tiercache.TierName, key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("tiercache.extend_failed", "tier", string(tier), "key", h.redact(key), "err", err)
}

func (h *Hooks) DecodeFailed(tier tiercache.TierName, key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("tiercache.decode_failed", "tier", string(tier), "key", h.redact(key), "err", err)
}
