package collab

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockProducer(t *testing.T) *mocks.SyncProducer {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	return mocks.NewSyncProducer(t, cfg)
}

func testOptions() KafkaDispatcherOptions {
	return KafkaDispatcherOptions{
		QueueSize:      8,
		Workers:        1,
		MaxRetry:       2,
		BaseBackoff:    time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		EnqueueTimeout: 50 * time.Millisecond,
	}
}

func sampleRecord() EditRecord {
	return NewEditRecord("ROOM01", "file-1", "conn-1", "user-1", "let x = 1", time.Now())
}

func TestDispatcherPublishesRecord(t *testing.T) {
	sp := mockProducer(t)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var rec EditRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		if rec.EventType != EventCodeChanged || rec.RoomID != "ROOM01" || rec.ContentLength != 9 {
			return errors.New("unexpected record")
		}
		return nil
	})

	d := NewKafkaDispatcher(sp, "codeweave.edits", NewSemaphoreControl(2), testOptions())
	require.NoError(t, d.Submit(context.Background(), sampleRecord()))
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, sp.Close())
}

func TestDispatcherRetriesFailedSend(t *testing.T) {
	sp := mockProducer(t)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	sp.ExpectSendMessageAndSucceed()

	d := NewKafkaDispatcher(sp, "codeweave.edits", nil, testOptions())
	require.NoError(t, d.Submit(context.Background(), sampleRecord()))
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, sp.Close())
}

func TestDispatcherRejectsAfterClose(t *testing.T) {
	d := NewKafkaDispatcher(nil, "", nil, testOptions())
	require.NoError(t, d.Close(context.Background()))
	assert.ErrorIs(t, d.Submit(context.Background(), sampleRecord()), ErrDispatcherClosed)
	require.NoError(t, d.Close(context.Background()))
}

type blockingProducer struct {
	sarama.SyncProducer
	started chan struct{}
	release chan struct{}
}

func (p *blockingProducer) SendMessage(*sarama.ProducerMessage) (int32, int64, error) {
	select {
	case p.started <- struct{}{}:
	default:
	}
	<-p.release
	return 0, 0, nil
}

func TestDispatcherDropsWhenQueueIsFull(t *testing.T) {
	bp := &blockingProducer{started: make(chan struct{}, 1), release: make(chan struct{})}
	opt := testOptions()
	opt.QueueSize = 1

	d := NewKafkaDispatcher(bp, "codeweave.edits", nil, opt)
	ctx := context.Background()

	require.NoError(t, d.Submit(ctx, sampleRecord()))
	<-bp.started
	require.NoError(t, d.Submit(ctx, sampleRecord()))
	assert.ErrorIs(t, d.Submit(ctx, sampleRecord()), ErrQueueFull)

	close(bp.release)
	require.NoError(t, d.Close(ctx))
}
