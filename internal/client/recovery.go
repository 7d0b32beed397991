package client

import (
	"errors"
	"fmt"

	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/logger"
)

// recover rebuilds every Session channel, reconnects every attached handle and
// replays the change subscriptions. Per-handle and per-topic failures are
// logged and skipped; only channels that could not be reopened are reported.
func (r *Registry) recover() error {
	logger.Info("Recovering broker sessions")
	err := r.recoverSessions()
	if serr := r.subs.recover(); serr != nil {
		err = errors.Join(err, serr)
	}
	if err != nil {
		// keep the drop pending so the next call tries again
		r.discMu.Lock()
		r.disconnected = true
		r.discMu.Unlock()
	}
	return err
}

func (r *Registry) recoverSessions() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for key, s := range r.sessions {
		if err := r.reopen(s); err != nil {
			logger.ErrorF("[%s] Fail to reopen session channel, details: %v", key, err)
			errs = append(errs, fmt.Errorf("session %s: %w", key, err))
			continue
		}
		for _, h := range s.Handles() {
			if err := r.connectHandle(s, h); err != nil {
				logger.WarnF("[%s] Fail to reconnect handle %s, details: %v", key, h.id, err)
			}
		}
		logger.InfoF("[%s] Session recovered with %d handles", key, len(s.Handles()))
	}
	return errors.Join(errs...)
}

func (r *Registry) reopen(s *Session) error {
	s.callMu.Lock()
	defer s.callMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.channel.OnDisconnect(nil)
	if err := s.channel.Close(); err != nil {
		logger.DebugF("[%s] Error occured while closing stale channel, details: %v", s.key, err)
	}
	ch, err := r.openChannel(r.opts.Address)
	if err != nil {
		return err
	}
	s.channel = ch
	return nil
}
