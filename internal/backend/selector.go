package backend

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/petems/audiotap/internal/audio"
)

// Selector chooses a backend for each capture session.
type Selector struct {
	log         zerolog.Logger
	descriptors []Descriptor

	mu       sync.RWMutex
	selected audio.Method
}

// NewSelector keeps descriptors in the order given, which is the fallback
// priority order.
func NewSelector(log zerolog.Logger, descriptors ...Descriptor) *Selector {
	return &Selector{
		log:         log.With().Str("component", "selector").Logger(),
		descriptors: descriptors,
	}
}

func (s *Selector) lookup(m audio.Method) (Descriptor, bool) {
	for _, d := range s.descriptors {
		if d.Method == m {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Available runs the probe for m. Unknown methods are never available.
func (s *Selector) Available(m audio.Method) bool {
	d, ok := s.lookup(m)
	return ok && d.Available()
}

// Methods lists every registered method in priority order.
func (s *Selector) Methods() []audio.Method {
	methods := make([]audio.Method, 0, len(s.descriptors))
	for _, d := range s.descriptors {
		methods = append(methods, d.Method)
	}
	return methods
}

// Candidates returns the available backends to try, in order. A preferred
// method that is available goes first. If it is unavailable, strict turns that
// into audio.ErrBackendUnsupported; otherwise selection silently falls back
// to priority order.
func (s *Selector) Candidates(preferred audio.Method, strict bool) ([]Descriptor, error) {
	var candidates []Descriptor

	if preferred != "" {
		d, ok := s.lookup(preferred)
		switch {
		case !ok:
			return nil, fmt.Errorf("%w: unknown method %q", audio.ErrBackendUnsupported, preferred)
		case d.Available():
			candidates = append(candidates, d)
		case strict:
			return nil, fmt.Errorf("%w: %s is not available on this system", audio.ErrBackendUnsupported, preferred)
		default:
			s.log.Info().Str("method", string(preferred)).Msg("Preferred method unavailable, falling back")
		}
	}

	for _, d := range s.descriptors {
		if d.Method == preferred {
			continue
		}
		if strict && preferred != "" {
			break
		}
		if d.Available() {
			candidates = append(candidates, d)
		}
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no capture method available", audio.ErrBackendUnsupported)
	}
	return candidates, nil
}

// Start walks the candidates and returns the first backend that accepts the
// config. Failures fall through to the next candidate, except invalid
// configurations, which no backend would accept.
func (s *Selector) Start(preferred audio.Method, strict bool, cfg audio.Config, sinks Sinks) (Backend, error) {
	candidates, err := s.Candidates(preferred, strict)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, d := range candidates {
		b := d.New()
		err := b.Start(cfg, sinks)
		if err == nil {
			s.mu.Lock()
			s.selected = d.Method
			s.mu.Unlock()
			return b, nil
		}

		s.log.Warn().Err(err).Str("method", string(d.Method)).Msg("Capture backend failed to start")
		errs = append(errs, fmt.Errorf("%s: %w", d.Method, err))
		if errors.Is(err, audio.ErrInvalidConfig) {
			break
		}
	}
	return nil, errors.Join(errs...)
}

// Selected returns the method of the most recent successful selection.
func (s *Selector) Selected() audio.Method {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}
