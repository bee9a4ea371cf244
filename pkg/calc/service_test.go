package calc

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"bspnl.com/pkg/kafka"
	"bspnl.com/pkg/options"
	"bspnl.com/pkg/scenario"
)

var entry = options.Params{SpotPrice: 50, StrikePrice: 40, TimeToExpiry: 2.5, RiskFreeRate: 0.04, Volatility: 0.4}

type seqIDs struct {
	mu   sync.Mutex
	next int64
}

func (g *seqIDs) NextID() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return g.next
}

type recordingPublisher struct {
	subjects []string
	events   []any
	err      error
}

func (p *recordingPublisher) Publish(subject string, data any) error {
	p.subjects = append(p.subjects, subject)
	p.events = append(p.events, data)
	return p.err
}

type failingSink struct{}

func (failingSink) WriteRows(context.Context, int64, []scenario.OutputRow) error {
	return errors.New("broker unavailable")
}

type recordingSender struct {
	msgs []kafka.Message
}

func (s *recordingSender) Send(msg kafka.Message) error {
	s.msgs = append(s.msgs, msg)
	return nil
}

func buildSurface(t *testing.T) *scenario.Surface {
	t.Helper()
	s, err := scenario.NewEngine(2).BuildSurface(context.Background(), entry, []float64{45, 50, 55}, []float64{0.3, 0.4})
	require.NoError(t, err)
	return s
}

func discardLogger() *logrus.Logger {
	log, _ := logtest.NewNullLogger()
	return log
}

func newTestService(sink RowSink) (*Service, *MemoryInputRepository, *MemoryOutputRepository, *logtest.Hook) {
	log, hook := logtest.NewNullLogger()
	store := NewMemoryStore()
	return NewService(store, sink, &seqIDs{}, log), store.inputs, store.outputs, hook
}

// brokenOutputs 批量写入总是失败
type brokenOutputs struct {
	*MemoryOutputRepository
}

func (brokenOutputs) CreateBatch(context.Context, []*Output) (int64, error) {
	return 0, errors.New("deadlock found when trying to get lock")
}

type brokenOutputsStore struct {
	*MemoryStore
}

func (s brokenOutputsStore) Outputs() OutputRepository {
	return brokenOutputs{s.MemoryStore.outputs}
}

func (s brokenOutputsStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.MemoryStore.Transaction(ctx, func(Store) error { return fn(s) })
}

func TestService_Save(t *testing.T) {
	svc, inputs, outputs, _ := newTestService(nil)
	pub := &recordingPublisher{}
	svc.WithEvents(pub, "calculation.saved")
	ctx := context.Background()

	calcID, err := svc.Save(ctx, buildSurface(t))
	require.NoError(t, err)
	require.Equal(t, int64(1), calcID)

	in, err := inputs.FindByID(ctx, calcID)
	require.NoError(t, err)
	require.Equal(t, entry, in.Params())

	// 2 个波动率 x 3 个标的价 x call/put
	rows, err := outputs.FindByCalculation(ctx, calcID)
	require.NoError(t, err)
	require.Len(t, rows, 12)
	require.True(t, rows[0].IsCall)
	require.False(t, rows[1].IsCall)
	require.Equal(t, 0.3, rows[0].VolatilityShock)
	require.Equal(t, 45.0, rows[0].StockPriceShock)

	// 入场点本身的价格等于入场价
	mid, err := outputs.FindByScenario(ctx, calcID, 0.4, 50)
	require.NoError(t, err)
	require.Len(t, mid, 2)
	require.InDelta(t, 18.905894192309773, mid[0].OptionPrice.InexactFloat64(), 1e-6)
	require.InDelta(t, 5.099390913748152, mid[1].OptionPrice.InexactFloat64(), 1e-6)

	require.Equal(t, []string{"calculation.saved"}, pub.subjects)
	ev := pub.events[0].(SavedEvent)
	require.Equal(t, calcID, ev.CalculationID)
	require.Equal(t, 12, ev.Rows)
	require.NotEmpty(t, ev.EventID)
}

func TestService_Save_SinkFailureRollsBackInput(t *testing.T) {
	svc, inputs, _, hook := newTestService(failingSink{})
	ctx := context.Background()

	_, err := svc.Save(ctx, buildSurface(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "broker unavailable")

	recent, err := inputs.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, recent)
	require.Empty(t, hook.AllEntries())
}

func TestService_Save_OutputFailureRollsBackInput(t *testing.T) {
	store := NewMemoryStore()
	pub := &recordingPublisher{}
	svc := NewService(brokenOutputsStore{store}, nil, &seqIDs{}, discardLogger()).WithEvents(pub, "calculation.saved")
	ctx := context.Background()

	_, err := svc.Save(ctx, buildSurface(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "write outputs")

	recent, err := store.Inputs().ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, recent)
	require.Empty(t, pub.events)
}

func TestMemoryStore_TransactionRollback(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	in, err := NewInput(1, entry.Record())
	require.NoError(t, err)
	require.NoError(t, store.Inputs().Create(ctx, in))
	_, err = store.Outputs().CreateBatch(ctx, []*Output{{CalculationID: 1, IsCall: true}})
	require.NoError(t, err)

	err = store.Transaction(ctx, func(tx Store) error {
		_, err := tx.Outputs().DeleteByCalculation(ctx, 1)
		require.NoError(t, err)
		_, err = tx.Inputs().Delete(ctx, 1)
		require.NoError(t, err)
		_, err = tx.Outputs().CreateBatch(ctx, []*Output{{CalculationID: 2}})
		require.NoError(t, err)
		return errors.New("abort")
	})
	require.EqualError(t, err, "abort")

	_, err = store.Inputs().FindByID(ctx, 1)
	require.NoError(t, err)
	rows, err := store.Outputs().FindByCalculation(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	rows, err = store.Outputs().FindByCalculation(ctx, 2)
	require.NoError(t, err)
	require.Empty(t, rows)

	// 回滚后 ID 从快照处继续
	_, err = store.Outputs().CreateBatch(ctx, []*Output{{CalculationID: 3}})
	require.NoError(t, err)
	rows, _ = store.Outputs().FindByCalculation(ctx, 3)
	require.Equal(t, uint(2), rows[0].CalculationOutputID)
}

func TestService_Save_PublishFailureOnlyWarns(t *testing.T) {
	svc, _, _, hook := newTestService(nil)
	svc.WithEvents(&recordingPublisher{err: errors.New("nats down")}, "calculation.saved")

	calcID, err := svc.Save(context.Background(), buildSurface(t))
	require.NoError(t, err)
	require.NotZero(t, calcID)

	last := hook.LastEntry()
	require.NotNil(t, last)
	require.Equal(t, logrus.WarnLevel, last.Level)
}

func TestService_KafkaSink(t *testing.T) {
	sender := &recordingSender{}
	svc, _, outputs, _ := newTestService(NewKafkaSink(sender, "calculation.outputs"))
	ctx := context.Background()

	calcID, err := svc.Save(ctx, buildSurface(t))
	require.NoError(t, err)

	// 输出行交给 Kafka，仓库里还没有
	rows, err := outputs.FindByCalculation(ctx, calcID)
	require.NoError(t, err)
	require.Empty(t, rows)

	require.Len(t, sender.msgs, 1)
	msg := sender.msgs[0]
	require.Equal(t, "calculation.outputs", msg.Topic())
	require.Equal(t, "1", msg.Key())

	// DBWriter 消费这条消息后落库
	w := NewDBWriter(outputs, 100, 0, logrus.New())
	value, err := msg.Value()
	require.NoError(t, err)
	require.NoError(t, w.HandleMessage(msg.Topic(), 0, 0, []byte(msg.Key()), value))
	w.Flush(ctx)

	rows, err = outputs.FindByCalculation(ctx, calcID)
	require.NoError(t, err)
	require.Len(t, rows, 12)
}

func TestService_QueriesAndDelete(t *testing.T) {
	svc, _, _, _ := newTestService(nil)
	ctx := context.Background()

	first, err := svc.Save(ctx, buildSurface(t))
	require.NoError(t, err)
	second, err := svc.Save(ctx, buildSurface(t))
	require.NoError(t, err)

	recent, err := svc.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)

	calls, err := svc.Outputs(ctx, first, "call")
	require.NoError(t, err)
	require.Len(t, calls, 6)
	for _, o := range calls {
		require.True(t, o.IsCall)
	}
	puts, err := svc.Outputs(ctx, first, "put")
	require.NoError(t, err)
	require.Len(t, puts, 6)
	all, err := svc.Outputs(ctx, first, "")
	require.NoError(t, err)
	require.Len(t, all, 12)

	st, err := svc.ColumnStats(ctx, first, ColumnStockPriceShock)
	require.NoError(t, err)
	require.Equal(t, 45.0, st.MinVal)
	require.Equal(t, 55.0, st.MaxVal)
	require.InDelta(t, 50.0, st.AvgVal, 1e-12)
	require.Equal(t, int64(12), st.TotalRows)

	_, err = svc.ColumnStats(ctx, first, "IsCall; DROP TABLE x")
	require.ErrorIs(t, err, ErrInvalidColumn)

	byT, err := svc.ByTimeToExpiry(ctx, 2.5)
	require.NoError(t, err)
	require.Len(t, byT, 2)
	byVol, err := svc.ByVolRange(ctx, 0.5, 0.3)
	require.NoError(t, err)
	require.Len(t, byVol, 2)

	require.NoError(t, svc.Delete(ctx, first))
	_, err = svc.Get(ctx, first)
	require.ErrorIs(t, err, ErrCalculationNotFound)
	require.ErrorIs(t, svc.Delete(ctx, first), ErrCalculationNotFound)

	got, err := svc.Get(ctx, second)
	require.NoError(t, err)
	require.Len(t, got.Outputs, 12)
}
