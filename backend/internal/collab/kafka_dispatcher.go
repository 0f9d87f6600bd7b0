package collab

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

var (
	ErrDispatcherClosed = errors.New("kafka dispatcher closed")
	ErrQueueFull        = errors.New("kafka dispatch queue full")
)

// KafkaDispatcher publishes edit records to Kafka off the relay path: a bounded local
// queue absorbs short broker stalls, workers send with limited retries, and when the
// queue stays full records are dropped rather than letting memory grow.
type KafkaDispatcher struct {
	producer sarama.SyncProducer
	topic    string

	queue chan EditRecord
	sem   *SemaphoreControl

	workers        int
	maxRetry       int
	baseBackoff    time.Duration
	maxBackoff     time.Duration
	enqueueTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	stop   context.Context
	cancel context.CancelFunc
}

type KafkaDispatcherOptions struct {
	QueueSize      int
	Workers        int
	MaxRetry       int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	EnqueueTimeout time.Duration
}

func DefaultKafkaDispatcherOptions() KafkaDispatcherOptions {
	return KafkaDispatcherOptions{
		QueueSize:      1024,
		Workers:        4,
		MaxRetry:       3,
		BaseBackoff:    100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		EnqueueTimeout: 50 * time.Millisecond,
	}
}

var _ EditSink = (*KafkaDispatcher)(nil)

func NewKafkaDispatcher(producer sarama.SyncProducer, topic string, sem *SemaphoreControl, opt KafkaDispatcherOptions) *KafkaDispatcher {
	def := DefaultKafkaDispatcherOptions()
	if opt.QueueSize <= 0 {
		opt.QueueSize = def.QueueSize
	}
	if opt.Workers <= 0 {
		opt.Workers = def.Workers
	}
	if opt.MaxRetry < 0 {
		opt.MaxRetry = 0
	}
	if opt.BaseBackoff <= 0 {
		opt.BaseBackoff = def.BaseBackoff
	}
	if opt.MaxBackoff <= 0 {
		opt.MaxBackoff = def.MaxBackoff
	}
	if opt.EnqueueTimeout <= 0 {
		opt.EnqueueTimeout = def.EnqueueTimeout
	}

	stop, cancel := context.WithCancel(context.Background())
	d := &KafkaDispatcher{
		producer:       producer,
		topic:          topic,
		queue:          make(chan EditRecord, opt.QueueSize),
		sem:            sem,
		workers:        opt.Workers,
		maxRetry:       opt.MaxRetry,
		baseBackoff:    opt.BaseBackoff,
		maxBackoff:     opt.MaxBackoff,
		enqueueTimeout: opt.EnqueueTimeout,
		stop:           stop,
		cancel:         cancel,
	}
	d.start()
	return d
}

// Submit enqueues rec, waiting at most the enqueue timeout for room in the queue.
func (d *KafkaDispatcher) Submit(ctx context.Context, rec EditRecord) error {
	ctx, cancel := context.WithTimeout(ctx, d.enqueueTimeout)
	defer cancel()
	if err := d.Enqueue(ctx, rec); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrQueueFull
		}
		return err
	}
	return nil
}

// Enqueue waits for queue space until ctx is done. Delivery is best effort.
func (d *KafkaDispatcher) Enqueue(ctx context.Context, rec EditRecord) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *KafkaDispatcher) start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.workerLoop(i)
	}
}

// Close stops intake and waits for the queue to drain. When ctx ends first, pending
// retries are abandoned.
func (d *KafkaDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-drained
		return ctx.Err()
	}
}

func (d *KafkaDispatcher) workerLoop(workerID int) {
	defer d.wg.Done()
	for rec := range d.queue {
		d.sendWithRetry(workerID, rec)
	}
}

func (d *KafkaDispatcher) sendWithRetry(workerID int, rec EditRecord) {
	for attempt := 0; attempt <= d.maxRetry; attempt++ {
		if d.stop.Err() != nil {
			log.Printf("kafka dispatcher stopped, drop event room=%s file=%s worker=%d", rec.RoomID, rec.FileID, workerID)
			return
		}
		if d.sem != nil {
			if err := d.sem.Acquire(d.stop); err != nil {
				log.Printf("kafka dispatcher stopped, drop event room=%s file=%s worker=%d", rec.RoomID, rec.FileID, workerID)
				return
			}
		}

		err := d.sendOnce(rec)

		if d.sem != nil {
			_ = d.sem.Release()
		}

		if err == nil {
			return
		}

		if attempt == d.maxRetry {
			log.Printf("kafka send failed, drop event room=%s file=%s participant=%s worker=%d err=%v",
				rec.RoomID, rec.FileID, rec.ParticipantID, workerID, err)
			return
		}

		// doubling backoff
		backoff := d.baseBackoff * time.Duration(1<<attempt)
		if backoff > d.maxBackoff {
			backoff = d.maxBackoff
		}
		t := time.NewTimer(backoff)
		select {
		case <-t.C:
		case <-d.stop.Done():
			t.Stop()
			log.Printf("kafka dispatcher stopped, drop event room=%s file=%s worker=%d", rec.RoomID, rec.FileID, workerID)
			return
		}
	}
}

func (d *KafkaDispatcher) sendOnce(rec EditRecord) error {
	if d.producer == nil || d.topic == "" {
		return nil
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: d.topic,
		Key:   sarama.StringEncoder(rec.RoomID),
		Value: sarama.ByteEncoder(b),
	}
	_, _, err = d.producer.SendMessage(msg)
	return err
}

// NewSyncProducer dials brokers with the settings the dispatcher expects.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = 0
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	return sarama.NewSyncProducer(brokers, cfg)
}
