package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	serrors "github.com/jkassis/bbstore/internal/errors"
	"github.com/jkassis/bbstore/internal/msg"
)

// Store persists unacknowledged messages and replays them on startup.
//
// Saves block until the first Load has finished so that recovery never races
// with new traffic. The outstanding-message counter is updated alongside
// every write but is not rolled back when the backend write fails.
type Store struct {
	mu      sync.RWMutex
	loadMu  sync.Mutex
	backend Backend // nil when inactive
	table   string

	gate    *Gate
	counter Counter

	codec  msg.Codec
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCodec sets the message codec. The default is msg.JSONCodec.
func WithCodec(c msg.Codec) Option {
	return func(s *Store) {
		if c != nil {
			s.codec = c
		}
	}
}

// WithClock overrides the time source used to stamp new messages.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// StoreMake builds a store over backend. A nil backend yields an inactive store.
func StoreMake(backend Backend, table string, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		table:   table,
		gate:    GateMake(),
		codec:   msg.JSONCodec{},
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	outstanding.WithLabelValues(table).Set(0)
	return s
}

// Table returns the table name records are kept in.
func (s *Store) Table() string { return s.table }

// active returns the backend, or nil once the store is inactive.
func (s *Store) active() Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend
}

func (s *Store) setOutstanding(n int64) {
	outstanding.WithLabelValues(s.table).Set(float64(n))
}

// Save persists an sms or removes the record an ack refers to.
// Any other message type is rejected without side effects.
func (s *Store) Save(ctx context.Context, m *msg.Msg) error {
	if m == nil {
		return serrors.New(serrors.CodeInvalidArgument, "nil message")
	}

	// always set msg id and timestamp
	if m.Type == msg.TypeSMS && m.SMS != nil {
		if m.SMS.ID == uuid.Nil {
			m.SMS.ID = uuid.New()
		}
		if m.SMS.Time.IsZero() {
			m.SMS.Time = s.now()
		}
	}

	if s.active() == nil {
		return nil
	}

	switch {
	case m.Type == msg.TypeSMS && m.SMS != nil:
	case m.Type == msg.TypeAck && m.Ack != nil:
	default:
		return serrors.Newf(serrors.CodeInvalidArgument, "unsupported message type %q", m.Type)
	}

	// block here until the store has been loaded
	if err := s.gate.Wait(ctx); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.backend == nil {
		return nil
	}

	if m.Type == msg.TypeSMS {
		return s.saveSMS(ctx, m)
	}
	return s.saveAck(ctx, m)
}

func (s *Store) saveSMS(ctx context.Context, m *msg.Msg) error {
	blob, err := s.codec.Pack(m)
	if err != nil {
		s.logger.Error("Could not pack message", zap.String("table", s.table), zap.Error(err))
		return serrors.Wrap(serrors.CodePack, "could not pack message", err)
	}

	id := m.SMS.ID.String()
	werr := s.backend.Upsert(ctx, s.table, id, blob)
	if werr != nil {
		backendErrors.WithLabelValues(s.table, "upsert").Inc()
		s.logger.Error("Store write failed", zap.String("table", s.table), zap.String("msgID", id), zap.Error(werr))
	}
	s.setOutstanding(s.counter.Inc())
	savesTotal.WithLabelValues(s.table, string(msg.TypeSMS)).Inc()

	if werr != nil {
		return serrors.Wrap(serrors.CodeBackend, "store write failed", werr)
	}
	s.logger.Debug("Message saved", zap.String("table", s.table), zap.String("msgID", id))
	return nil
}

func (s *Store) saveAck(ctx context.Context, m *msg.Msg) error {
	id := m.Ack.ID.String()
	werr := s.backend.Delete(ctx, s.table, id)
	if werr != nil {
		backendErrors.WithLabelValues(s.table, "delete").Inc()
		s.logger.Error("Store delete failed", zap.String("table", s.table), zap.String("msgID", id), zap.Error(werr))
	}
	s.setOutstanding(s.counter.Dec())
	savesTotal.WithLabelValues(s.table, string(msg.TypeAck)).Inc()

	if werr != nil {
		return serrors.Wrap(serrors.CodeBackend, "store delete failed", werr)
	}
	s.logger.Debug("Message acknowledged", zap.String("table", s.table), zap.String("msgID", id))
	return nil
}

// SaveAck stores an ack for the sms carried by m.
func (s *Store) SaveAck(ctx context.Context, m *msg.Msg, status msg.AckStatus) error {
	if m == nil || m.SMS == nil {
		return serrors.New(serrors.CodeInvalidArgument, "ack requires an sms message")
	}
	return s.Save(ctx, msg.NewAck(m, status))
}

// Load dispatches every stored message to receive and opens the save gate.
// The gate opens even when enumeration fails. It returns the number of
// messages dispatched.
//
// Only the first Load adds to the counter, one per dispatched message. Saves
// and acks keep the counter current from then on, so a later Load only
// dispatches. Concurrent calls are serialized. receive must not call Save on
// the same store: the gate is still closed while messages are dispatched.
func (s *Store) Load(ctx context.Context, receive func(*msg.Msg)) (int, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	s.mu.RLock()
	backend := s.backend
	if backend == nil {
		s.mu.RUnlock()
		return 0, nil
	}
	if receive == nil {
		s.mu.RUnlock()
		return 0, serrors.New(serrors.CodeInvalidArgument, "load requires a receiver")
	}

	reload := s.gate.IsOpen()
	// allow using of storage
	defer s.gate.Open()

	records, err := backend.EnumerateAll(ctx, s.table)
	s.mu.RUnlock()
	if err != nil {
		backendErrors.WithLabelValues(s.table, "enumerate").Inc()
		s.logger.Error("Failed to fetch messages from store", zap.String("table", s.table), zap.Error(err))
		return 0, serrors.Wrap(serrors.CodeBackend, "failed to fetch messages from store", err)
	}
	if len(records) == 0 {
		s.logger.Debug("No messages loaded from store", zap.String("table", s.table))
	}

	dispatched := 0
	for _, r := range records {
		m, err := s.unpack(r)
		if err != nil {
			s.logger.Error("Could not unpack message from store", zap.String("table", s.table), zap.String("msgID", r.ID), zap.Error(err))
			continue
		}
		receive(m)
		dispatched++
		if !reload {
			s.setOutstanding(s.counter.Inc())
		}
	}
	loadedTotal.WithLabelValues(s.table).Add(float64(dispatched))

	s.logger.Info("Loaded messages from store",
		zap.String("table", s.table),
		zap.Int("count", dispatched),
		zap.Int64("outstanding", s.counter.Value()),
	)
	return dispatched, nil
}

func (s *Store) unpack(r Record) (*msg.Msg, error) {
	m, err := s.codec.Unpack(r.Blob)
	if err != nil {
		malformedRecords.WithLabelValues(s.table).Inc()
		return nil, err
	}
	if m == nil {
		malformedRecords.WithLabelValues(s.table).Inc()
		return nil, serrors.New(serrors.CodePack, "stored record decoded to nothing")
	}
	if m.Type != msg.TypeSMS {
		malformedRecords.WithLabelValues(s.table).Inc()
		return nil, serrors.Newf(serrors.CodePack, "stored record has type %q", m.Type)
	}
	if m.SMS == nil {
		malformedRecords.WithLabelValues(s.table).Inc()
		return nil, serrors.New(serrors.CodePack, "stored sms has no payload")
	}
	return m, nil
}

// Dump is a no-op: every save and ack is written through to the backend,
// so there is nothing to flush.
func (s *Store) Dump() error { return nil }

// Messages returns the outstanding message count, or -1 if the store is inactive.
func (s *Store) Messages() int64 {
	if s.active() == nil {
		return -1
	}
	return s.counter.Value()
}

// Loaded reports whether the save gate is open.
func (s *Store) Loaded() bool { return s.gate.IsOpen() }

// Shutdown releases the backend and leaves the store inactive. Savers still
// waiting on the gate are released and return without writing.
func (s *Store) Shutdown() error {
	s.gate.Open()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend == nil {
		return nil
	}
	err := s.backend.Close()
	s.backend = nil
	s.counter.Set(0)
	s.setOutstanding(0)
	s.logger.Info("Store shut down", zap.String("table", s.table))
	return err
}
