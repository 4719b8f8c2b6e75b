package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/signbridge/internal/dispatch"
	"github.com/ayusman/signbridge/internal/ingest"
	"github.com/ayusman/signbridge/internal/landmark"
	"github.com/ayusman/signbridge/internal/session"
	"github.com/ayusman/signbridge/internal/vocabulary"
)

// step handles one forwarded frame: gate on the session, match against the
// current vocabulary, publish. It runs on the ingest cadence goroutine and
// never blocks on consumers.
func (b *Bridge) step(_ context.Context, f landmark.HandFrame) {
	snap, err := b.session.Admit(f)
	if err != nil {
		if errors.Is(err, session.ErrStaleSession) {
			b.tagStale.Add(1)
		} else {
			b.gated.Add(1)
		}
		return
	}

	c, ok := b.matcher.Match(f, b.vocab.Load())
	if !ok {
		return
	}
	b.matched.Add(1)

	b.dispatcher.Publish(dispatch.Event{
		ID:                uuid.NewString(),
		SignName:          c.Name,
		Category:          c.Category,
		Confidence:        c.Confidence,
		SessionID:         snap.ID,
		Timestamp:         f.Timestamp,
		Side:              f.Side.String(),
		VocabularyVersion: c.Version,
	})
}

// Vocabulary returns the vocabulary frames are currently matched against.
func (b *Bridge) Vocabulary() *vocabulary.Vocabulary {
	return b.vocab.Load()
}

// ReloadVocabulary rebuilds the vocabulary from its source and swaps it in.
// On failure the current vocabulary stays in place.
func (b *Bridge) ReloadVocabulary(ctx context.Context) (*vocabulary.Vocabulary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := b.loadVocabulary()
	if err != nil {
		b.log.WithError(err).Warn("vocabulary reload failed, keeping current")
		return nil, err
	}
	old := b.vocab.Swap(v)
	b.log.WithFields(logrus.Fields{
		"from":  old.Version,
		"to":    v.Version,
		"signs": v.Len(),
	}).Info("vocabulary reloaded")
	return v, nil
}

// loadVocabulary reads the configured file, else the stored catalog, else
// the built-in signs.
func (b *Bridge) loadVocabulary() (*vocabulary.Vocabulary, error) {
	if path := b.cfg.Vocabulary.File; path != "" {
		v, err := vocabulary.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load vocabulary %s: %w", path, err)
		}
		return v, nil
	}
	if b.store != nil {
		v, err := vocabulary.FromStore(b.store)
		switch {
		case err == nil:
			return v, nil
		case !errors.Is(err, vocabulary.ErrEmptyCatalog):
			return nil, fmt.Errorf("load vocabulary from store: %w", err)
		}
	}
	return vocabulary.Default(), nil
}

// PipelineStats counts what happened to forwarded frames.
type PipelineStats struct {
	Matched uint64 `json:"matched"`
	// Gated frames arrived while no session was active.
	Gated uint64 `json:"gated"`
	// StaleSession frames carried a replaced session id.
	StaleSession uint64 `json:"stale_session"`
}

// SessionStats is the session part of Stats.
type SessionStats struct {
	State string `json:"state"`
	ID    string `json:"session_id,omitempty"`
}

// Stats is the body of GET /api/stats.
type Stats struct {
	Ingest     ingest.Stats                      `json:"ingest"`
	Pipeline   PipelineStats                     `json:"pipeline"`
	Session    SessionStats                      `json:"session"`
	Dispatch   map[string]dispatch.ConsumerStats `json:"dispatch"`
	Vocabulary string                            `json:"vocabulary_version"`
	Feed       int                               `json:"websocket_clients"`
}

// Stats returns a snapshot of every counter.
func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	loop := b.loop
	b.mu.Unlock()

	snap := b.session.Snapshot()
	st := Stats{
		Pipeline: PipelineStats{
			Matched:      b.matched.Load(),
			Gated:        b.gated.Load(),
			StaleSession: b.tagStale.Load(),
		},
		Session:    SessionStats{State: snap.State.String(), ID: snap.ID},
		Dispatch:   b.dispatcher.Stats(),
		Vocabulary: b.vocab.Load().Version,
		Feed:       b.feed.ClientCount(),
	}
	if loop != nil {
		st.Ingest = loop.Stats()
	}
	return st
}
