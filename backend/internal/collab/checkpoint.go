package collab

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"codeweave/backend/internal/apperr"
)

// ContentWriter persists a file's full content. room.Service satisfies it.
type ContentWriter interface {
	UpdateFileContent(ctx context.Context, roomID, fileID, content string) error
}

type fileKey struct {
	roomID string
	fileID string
}

type dirtyEntry struct {
	content string
	seq     uint64
}

// Checkpointer keeps the latest relayed content per file and writes it to the room
// store on a ticker. Only the newest content of a file is ever written.
type Checkpointer struct {
	writer   ContentWriter
	interval time.Duration
	sem      *SemaphoreControl

	mu    sync.Mutex
	dirty map[fileKey]dirtyEntry
	seq   uint64
}

var _ EditSink = (*Checkpointer)(nil)

// NewCheckpointer flushes every interval; interval 0 leaves flushing to explicit calls.
func NewCheckpointer(writer ContentWriter, interval time.Duration, sem *SemaphoreControl) *Checkpointer {
	if sem == nil {
		sem = NewSemaphoreControl(8)
	}
	return &Checkpointer{
		writer:   writer,
		interval: interval,
		sem:      sem,
		dirty:    make(map[fileKey]dirtyEntry),
	}
}

func (c *Checkpointer) Submit(_ context.Context, rec EditRecord) error {
	if rec.RoomID == "" || rec.FileID == "" {
		return nil
	}
	c.mu.Lock()
	c.seq++
	c.dirty[fileKey{rec.RoomID, rec.FileID}] = dirtyEntry{content: rec.Content, seq: c.seq}
	c.mu.Unlock()
	return nil
}

// Pending returns the unflushed contents of a room by file id.
func (c *Checkpointer) Pending(roomID string) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string)
	for k, e := range c.dirty {
		if k.roomID == roomID {
			out[k.fileID] = e.content
		}
	}
	return out
}

func (c *Checkpointer) Dirty() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.dirty)
}

// Flush writes every dirty file. An entry that changed while being written stays
// dirty for the next round, as does a write that failed for any reason but a
// missing room or file.
func (c *Checkpointer) Flush(ctx context.Context) error {
	c.mu.Lock()
	batch := make(map[fileKey]dirtyEntry, len(c.dirty))
	for k, e := range c.dirty {
		batch[k] = e
	}
	c.mu.Unlock()

	var (
		wg   sync.WaitGroup
		emu  sync.Mutex
		errs []error
	)
	for k, e := range batch {
		if err := c.sem.Acquire(ctx); err != nil {
			emu.Lock()
			errs = append(errs, err)
			emu.Unlock()
			break
		}
		wg.Add(1)
		go func(k fileKey, e dirtyEntry) {
			defer wg.Done()
			defer func() { _ = c.sem.Release() }()

			if err := c.writer.UpdateFileContent(ctx, k.roomID, k.fileID, e.content); err != nil {
				if apperr.IsKind(err, apperr.NotFound) {
					// room or file is gone; retrying cannot succeed
					c.forgetIfUnchanged(k, e.seq)
				}
				emu.Lock()
				errs = append(errs, fmt.Errorf("checkpoint room=%s file=%s: %w", k.roomID, k.fileID, err))
				emu.Unlock()
				return
			}
			c.forgetIfUnchanged(k, e.seq)
		}(k, e)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (c *Checkpointer) forgetIfUnchanged(k fileKey, seq uint64) {
	c.mu.Lock()
	if cur, ok := c.dirty[k]; ok && cur.seq == seq {
		delete(c.dirty, k)
	}
	c.mu.Unlock()
}

// Run flushes on the ticker until ctx is done. It returns at once when the interval is 0.
func (c *Checkpointer) Run(ctx context.Context) {
	if c.interval <= 0 {
		return
	}
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Flush(ctx); err != nil {
				log.Printf("checkpoint flush: %v", err)
			}
		}
	}
}
