package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/jkassis/bbstore/internal/errors"
	"github.com/jkassis/bbstore/internal/msg"
)

const testTable = "gw_store"

// StoreTestFactory creates a store over a fresh RAM backend and returns both.
func StoreTestFactory(t *testing.T) (*Store, *RAMBackend) {
	t.Helper()
	backend := RAMBackendMake()
	s := StoreMake(backend, testTable)
	t.Cleanup(func() { _ = s.Shutdown() })
	return s, backend
}

// loaded opens the gate of s with an empty load.
func loaded(t *testing.T, s *Store) *Store {
	t.Helper()
	_, err := s.Load(context.Background(), func(*msg.Msg) {})
	require.NoError(t, err)
	return s
}

func newTestSMS(sender string) *msg.Msg {
	return msg.NewSMS(msg.SMS{
		SMSType:  msg.MTPush,
		Sender:   sender,
		Receiver: "4915112345678",
		SMSCID:   "smsc-a",
		BoxCID:   "box-1",
		MsgData:  []byte("hello " + sender),
		Coding:   msg.Coding7Bit,
	})
}

func recordCount(t *testing.T, b Backend) int {
	t.Helper()
	records, err := b.EnumerateAll(context.Background(), testTable)
	require.NoError(t, err)
	return len(records)
}

// failingBackend fails the operations it is told to.
type failingBackend struct {
	*RAMBackend
	failUpsert, failDelete, failEnumerate bool
}

var errBackendDown = errors.New("backend down")

func (b *failingBackend) Upsert(ctx context.Context, table, id string, blob []byte) error {
	if b.failUpsert {
		return errBackendDown
	}
	return b.RAMBackend.Upsert(ctx, table, id, blob)
}

func (b *failingBackend) Delete(ctx context.Context, table, id string) error {
	if b.failDelete {
		return errBackendDown
	}
	return b.RAMBackend.Delete(ctx, table, id)
}

func (b *failingBackend) EnumerateAll(ctx context.Context, table string) ([]Record, error) {
	if b.failEnumerate {
		return nil, errBackendDown
	}
	return b.RAMBackend.EnumerateAll(ctx, table)
}

// Scenario A: save then ack leaves nothing behind
func TestSaveThenAck(t *testing.T) {
	s, backend := StoreTestFactory(t)
	loaded(t, s)
	ctx := context.Background()

	m := newTestSMS("alice")
	require.NoError(t, s.Save(ctx, m))
	assert.Equal(t, int64(1), s.Messages())
	assert.Equal(t, 1, recordCount(t, backend))

	require.NoError(t, s.Save(ctx, msg.NewAck(m, msg.AckSuccess)))
	assert.Equal(t, int64(0), s.Messages())
	assert.Equal(t, 0, recordCount(t, backend))

	assert.Equal(t, plainHeader, s.Status(ctx, StatusPlain))
}

func TestSaveAssignsIDAndTime(t *testing.T) {
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s := StoreMake(RAMBackendMake(), testTable, WithClock(func() time.Time { return fixed }))
	loaded(t, s)

	m := newTestSMS("bob")
	require.NoError(t, s.Save(context.Background(), m))
	assert.NotEqual(t, uuid.Nil, m.SMS.ID)
	assert.True(t, fixed.Equal(m.SMS.Time))

	id := uuid.New()
	when := time.Unix(1600000000, 0)
	kept := newTestSMS("carol")
	kept.SMS.ID, kept.SMS.Time = id, when
	require.NoError(t, s.Save(context.Background(), kept))
	assert.Equal(t, id, kept.SMS.ID)
	assert.True(t, when.Equal(kept.SMS.Time))
}

func TestSaveAckHelper(t *testing.T) {
	s, backend := StoreTestFactory(t)
	loaded(t, s)
	ctx := context.Background()

	m := newTestSMS("dave")
	require.NoError(t, s.Save(ctx, m))
	require.NoError(t, s.SaveAck(ctx, m, msg.AckFailed))

	assert.Equal(t, int64(0), s.Messages())
	assert.Equal(t, 0, recordCount(t, backend))

	err := s.SaveAck(ctx, &msg.Msg{Type: msg.TypeAdmin}, msg.AckSuccess)
	assert.Equal(t, serrors.CodeInvalidArgument, serrors.AsCode(err))
}

func TestSaveUpsertOverwrites(t *testing.T) {
	s, backend := StoreTestFactory(t)
	loaded(t, s)
	ctx := context.Background()

	m := newTestSMS("erin")
	require.NoError(t, s.Save(ctx, m))
	m.SMS.MsgData = []byte("second version")
	require.NoError(t, s.Save(ctx, m))

	records, err := backend.EnumerateAll(ctx, testTable)
	require.NoError(t, err)
	require.Len(t, records, 1)

	got, err := msg.JSONCodec{}.Unpack(records[0].Blob)
	require.NoError(t, err)
	assert.Equal(t, "second version", string(got.SMS.MsgData))
}

// Scenario B: load replays every stored message once
func TestLoadDispatchesStoredMessages(t *testing.T) {
	backend := RAMBackendMake()
	first := StoreMake(backend, testTable)
	loaded(t, first)

	ctx := context.Background()
	m1, m2 := newTestSMS("frank"), newTestSMS("grace")
	require.NoError(t, first.Save(ctx, m1))
	require.NoError(t, first.Save(ctx, m2))

	// simulate a restart over the same backend
	second := StoreMake(backend, testTable)
	var got []*msg.Msg
	n, err := second.Load(ctx, func(m *msg.Msg) { got = append(got, m) })
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, int64(2), second.Messages())
	require.Len(t, got, 2)

	want := map[uuid.UUID]*msg.Msg{m1.SMS.ID: m1, m2.SMS.ID: m2}
	for _, m := range got {
		orig, ok := want[m.SMS.ID]
		require.True(t, ok)
		assert.Equal(t, orig.SMS.Sender, m.SMS.Sender)
		assert.Equal(t, orig.SMS.Receiver, m.SMS.Receiver)
		assert.Equal(t, orig.SMS.MsgData, m.SMS.MsgData)
		assert.Equal(t, orig.SMS.SMSType, m.SMS.SMSType)
		assert.True(t, orig.SMS.Time.Equal(m.SMS.Time))
		delete(want, m.SMS.ID)
	}
}

// Scenario C: unsupported types are rejected without side effects
func TestSaveRejectsUnsupportedType(t *testing.T) {
	s, backend := StoreTestFactory(t)
	loaded(t, s)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, newTestSMS("heidi")))

	for _, m := range []*msg.Msg{
		{Type: msg.TypeAdmin},
		{Type: msg.TypeHeartbeat},
		{Type: msg.TypeSMS},
		{Type: msg.TypeAck},
	} {
		err := s.Save(ctx, m)
		assert.Equal(t, serrors.CodeInvalidArgument, serrors.AsCode(err), "type %s", m.Type)
	}

	assert.Equal(t, int64(1), s.Messages())
	assert.Equal(t, 1, recordCount(t, backend))

	assert.Equal(t, serrors.CodeInvalidArgument, serrors.AsCode(s.Save(ctx, nil)))
}

func TestSaveBlocksUntilLoadCompletes(t *testing.T) {
	backend := RAMBackendMake()
	seed := newTestSMS("ivan")
	seed.SMS.ID = uuid.New()
	blob, err := msg.JSONCodec{}.Pack(seed)
	require.NoError(t, err)
	require.NoError(t, backend.Upsert(context.Background(), testTable, seed.SMS.ID.String(), blob))

	s := StoreMake(backend, testTable)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- s.Save(ctx, newTestSMS("judy")) }()

	select {
	case <-done:
		t.Fatal("save completed before load")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 1, recordCount(t, backend))

	var savedDuringDispatch bool
	n, err := s.Load(ctx, func(*msg.Msg) {
		time.Sleep(20 * time.Millisecond)
		select {
		case <-done:
			savedDuringDispatch = true
		default:
		}
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, savedDuringDispatch)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("save still blocked after load")
	}
	assert.Equal(t, int64(2), s.Messages())
	assert.Equal(t, 2, recordCount(t, backend))
}

func TestSecondLoadDoesNotDoubleCount(t *testing.T) {
	s, _ := StoreTestFactory(t)
	loaded(t, s)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, newTestSMS("ken")))
	require.NoError(t, s.Save(ctx, newTestSMS("lea")))

	done := make(chan struct{})
	var n int
	var err error
	go func() {
		n, err = s.Load(ctx, func(*msg.Msg) {})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second load blocked")
	}
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(2), s.Messages())
}

func TestConcurrentSavesSettleToRecordCount(t *testing.T) {
	s, backend := StoreTestFactory(t)
	ctx := context.Background()

	const writers = 8
	const perWriter = 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				m := newTestSMS("mallory")
				if err := s.Save(ctx, m); err != nil {
					t.Error(err)
					return
				}
				if i%2 == 0 {
					if err := s.SaveAck(ctx, m, msg.AckSuccess); err != nil {
						t.Error(err)
						return
					}
				}
			}
		}()
	}

	// writers are parked on the gate until this load
	loaded(t, s)
	wg.Wait()

	assert.Equal(t, int64(recordCount(t, backend)), s.Messages())
	assert.Equal(t, int64(writers*(perWriter/2)), s.Messages())
}

func TestLoadSkipsMalformedRecords(t *testing.T) {
	s, backend := StoreTestFactory(t)
	ctx := context.Background()

	good := newTestSMS("nina")
	good.SMS.ID = uuid.New()
	good.SMS.Time = time.Now()
	blob, err := msg.JSONCodec{}.Pack(good)
	require.NoError(t, err)
	ackBlob, err := msg.JSONCodec{}.Pack(msg.NewAck(good, msg.AckSuccess))
	require.NoError(t, err)

	require.NoError(t, backend.Upsert(ctx, testTable, good.SMS.ID.String(), blob))
	require.NoError(t, backend.Upsert(ctx, testTable, "garbage", []byte("{not json")))
	require.NoError(t, backend.Upsert(ctx, testTable, "an-ack", ackBlob))

	var got []*msg.Msg
	n, err := s.Load(ctx, func(m *msg.Msg) { got = append(got, m) })
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, got, 1)
	assert.Equal(t, good.SMS.ID, got[0].SMS.ID)
	assert.Equal(t, int64(1), s.Messages())
	assert.True(t, s.Loaded())
}

func TestLoadFailureStillOpensGate(t *testing.T) {
	backend := &failingBackend{RAMBackend: RAMBackendMake(), failEnumerate: true}
	s := StoreMake(backend, testTable)
	ctx := context.Background()

	n, err := s.Load(ctx, func(*msg.Msg) {})
	assert.Equal(t, 0, n)
	assert.Equal(t, serrors.CodeBackend, serrors.AsCode(err))
	assert.True(t, s.Loaded())

	require.NoError(t, s.Save(ctx, newTestSMS("oscar")))
	assert.Equal(t, int64(1), s.Messages())
}

func TestLoadRequiresReceiver(t *testing.T) {
	s, _ := StoreTestFactory(t)
	_, err := s.Load(context.Background(), nil)
	assert.Equal(t, serrors.CodeInvalidArgument, serrors.AsCode(err))
	assert.False(t, s.Loaded())
}

// A failed write is reported but the counter keeps its optimistic update.
func TestBackendFailureKeepsCounterMutation(t *testing.T) {
	backend := &failingBackend{RAMBackend: RAMBackendMake()}
	s := loaded(t, StoreMake(backend, testTable))
	ctx := context.Background()

	backend.failUpsert = true
	err := s.Save(ctx, newTestSMS("peggy"))
	assert.Equal(t, serrors.CodeBackend, serrors.AsCode(err))
	assert.ErrorIs(t, err, errBackendDown)
	assert.Equal(t, int64(1), s.Messages())
	assert.Equal(t, 0, recordCount(t, backend))

	backend.failUpsert = false
	backend.failDelete = true
	m := newTestSMS("quentin")
	require.NoError(t, s.Save(ctx, m))
	err = s.SaveAck(ctx, m, msg.AckSuccess)
	assert.Equal(t, serrors.CodeBackend, serrors.AsCode(err))
	assert.Equal(t, int64(1), s.Messages())
	assert.Equal(t, 1, recordCount(t, backend))
}

func TestInactiveStore(t *testing.T) {
	s := StoreMake(nil, testTable)
	ctx := context.Background()

	m := newTestSMS("rupert")
	require.NoError(t, s.Save(ctx, m))
	assert.NotEqual(t, uuid.Nil, m.SMS.ID)
	require.NoError(t, s.Save(ctx, &msg.Msg{Type: msg.TypeAdmin}))

	n, err := s.Load(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.Equal(t, int64(-1), s.Messages())
	assert.Equal(t, "", s.Status(ctx, StatusHTML))
	require.NoError(t, s.Dump())
	require.NoError(t, s.Shutdown())
}

func TestShutdownReleasesBlockedSavers(t *testing.T) {
	s, backend := StoreTestFactory(t)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- s.Save(ctx, newTestSMS("sybil")) }()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, s.Shutdown())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("saver still blocked after shutdown")
	}

	assert.Equal(t, int64(-1), s.Messages())
	assert.Equal(t, 0, recordCount(t, backend))
	require.NoError(t, s.Shutdown())
}

func TestSaveWaitCanBeCancelled(t *testing.T) {
	s, backend := StoreTestFactory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Save(ctx, newTestSMS("trent"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(0), s.Messages())
	assert.Equal(t, 0, recordCount(t, backend))
}

func TestDumpIsNoop(t *testing.T) {
	s, _ := StoreTestFactory(t)
	assert.NoError(t, s.Dump())
}

// lenientCodec decodes "hollow" to an sms without payload and "void" to nothing.
type lenientCodec struct {
	msg.JSONCodec
}

func (c lenientCodec) Unpack(b []byte) (*msg.Msg, error) {
	switch string(b) {
	case "hollow":
		return &msg.Msg{Type: msg.TypeSMS}, nil
	case "void":
		return nil, nil
	}
	return c.JSONCodec.Unpack(b)
}

func TestEmptyDecodesAreSkipped(t *testing.T) {
	backend := RAMBackendMake()
	s := StoreMake(backend, testTable, WithCodec(lenientCodec{}))
	t.Cleanup(func() { _ = s.Shutdown() })
	ctx := context.Background()

	good := newTestSMS("uma")
	good.SMS.ID = uuid.New()
	blob, err := msg.JSONCodec{}.Pack(good)
	require.NoError(t, err)
	require.NoError(t, backend.Upsert(ctx, testTable, good.SMS.ID.String(), blob))
	require.NoError(t, backend.Upsert(ctx, testTable, "hollow", []byte("hollow")))
	require.NoError(t, backend.Upsert(ctx, testTable, "void", []byte("void")))

	var out string
	require.NotPanics(t, func() { out = s.Status(ctx, StatusPlain) })
	assert.Equal(t, 2, len(strings.Split(strings.TrimSuffix(out, "\n"), "\n")))
	assert.Contains(t, out, good.SMS.ID.String())

	var got []*msg.Msg
	n, err := s.Load(ctx, func(m *msg.Msg) { got = append(got, m) })
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].SMS)
	assert.Equal(t, good.SMS.ID, got[0].SMS.ID)
	assert.Equal(t, int64(1), s.Messages())
}

// racingBackend runs onEnumerate after taking its snapshot.
type racingBackend struct {
	*RAMBackend
	onEnumerate func()
}

func (b *racingBackend) EnumerateAll(ctx context.Context, table string) ([]Record, error) {
	records, err := b.RAMBackend.EnumerateAll(ctx, table)
	if hook := b.onEnumerate; hook != nil {
		b.onEnumerate = nil
		hook()
	}
	return records, err
}

func TestReloadKeepsSavesThatRaceTheSnapshot(t *testing.T) {
	backend := &racingBackend{RAMBackend: RAMBackendMake()}
	s := loaded(t, StoreMake(backend, testTable))
	t.Cleanup(func() { _ = s.Shutdown() })
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, newTestSMS("vera")))
	backend.onEnumerate = func() {
		require.NoError(t, s.Save(ctx, newTestSMS("wade")))
	}

	n, err := s.Load(ctx, func(*msg.Msg) {})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, recordCount(t, backend))
	assert.Equal(t, int64(recordCount(t, backend)), s.Messages())
}

func TestConcurrentFirstLoadsCountOnce(t *testing.T) {
	backend := RAMBackendMake()
	ctx := context.Background()
	for _, sender := range []string{"xavier", "yara", "zed"} {
		m := newTestSMS(sender)
		m.SMS.ID = uuid.New()
		blob, err := msg.JSONCodec{}.Pack(m)
		require.NoError(t, err)
		require.NoError(t, backend.Upsert(ctx, testTable, m.SMS.ID.String(), blob))
	}

	s := StoreMake(backend, testTable)
	t.Cleanup(func() { _ = s.Shutdown() })

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Load(ctx, func(*msg.Msg) {})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(3), s.Messages())
}
