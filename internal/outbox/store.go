package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	pendingKey    = "comanda:outbox:pending"
	processingKey = "comanda:outbox:processing"
	deadKey       = "comanda:outbox:dead"
)

// Entry is a write that could not reach the database and waits for replay.
type Entry struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	LastError  string          `json:"last_error,omitempty"`
}

// Claim is an entry moved to the processing list. It stays there until it is
// acknowledged, requeued or buried, so a crash mid-replay does not lose it.
type Claim struct {
	Entry Entry
	raw   []byte
}

type Store interface {
	Push(ctx context.Context, entry Entry) error
	// Claim moves the oldest pending entry to processing; nil when the queue is empty.
	Claim(ctx context.Context) (*Claim, error)
	Ack(ctx context.Context, claim *Claim) error
	// Requeue replaces the claim with entry at the tail of the pending list.
	Requeue(ctx context.Context, claim *Claim, entry Entry) error
	Bury(ctx context.Context, claim *Claim, entry Entry) error
	// Recover returns every claimed entry to the pending list. Only safe while
	// holding the drain lock.
	Recover(ctx context.Context) (int64, error)
	Len(ctx context.Context) (int64, error)
	DeadLen(ctx context.Context) (int64, error)
}

// NewStore uses redis when a client is configured so queued writes survive a restart.
func NewStore(client *redis.Client) Store {
	if client == nil {
		return NewMemoryStore()
	}
	return NewRedisStore(client)
}

type redisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func (s *redisStore) Push(ctx context.Context, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.client.LPush(ctx, pendingKey, raw).Err()
}

func (s *redisStore) Claim(ctx context.Context) (*Claim, error) {
	raw, err := s.client.LMove(ctx, pendingKey, processingKey, "RIGHT", "LEFT").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	claim := &Claim{raw: raw}
	if err := json.Unmarshal(raw, &claim.Entry); err != nil {
		// Unreadable entries are parked with the dead ones for inspection.
		if buryErr := s.move(ctx, raw, deadKey); buryErr != nil {
			return nil, buryErr
		}
		return nil, err
	}
	return claim, nil
}

func (s *redisStore) Ack(ctx context.Context, claim *Claim) error {
	return s.client.LRem(ctx, processingKey, 1, claim.raw).Err()
}

func (s *redisStore) Requeue(ctx context.Context, claim *Claim, entry Entry) error {
	return s.replace(ctx, claim, entry, pendingKey)
}

func (s *redisStore) Bury(ctx context.Context, claim *Claim, entry Entry) error {
	return s.replace(ctx, claim, entry, deadKey)
}

func (s *redisStore) replace(ctx context.Context, claim *Claim, entry Entry, dst string) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, processingKey, 1, claim.raw)
		pipe.LPush(ctx, dst, raw)
		return nil
	})
	return err
}

func (s *redisStore) move(ctx context.Context, raw []byte, dst string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, processingKey, 1, raw)
		pipe.LPush(ctx, dst, raw)
		return nil
	})
	return err
}

func (s *redisStore) Recover(ctx context.Context) (int64, error) {
	var moved int64
	for {
		err := s.client.LMove(ctx, processingKey, pendingKey, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, err
		}
		moved++
	}
}

func (s *redisStore) Len(ctx context.Context) (int64, error) {
	return s.client.LLen(ctx, pendingKey).Result()
}

func (s *redisStore) DeadLen(ctx context.Context) (int64, error) {
	return s.client.LLen(ctx, deadKey).Result()
}

type memoryStore struct {
	mu         sync.Mutex
	pending    []Entry
	processing []Entry
	dead       []Entry
}

func NewMemoryStore() Store {
	return &memoryStore{}
}

func (s *memoryStore) Push(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	s.pending = append(s.pending, entry)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Claim(ctx context.Context) (*Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil, nil
	}
	entry := s.pending[0]
	s.pending = s.pending[1:]
	s.processing = append(s.processing, entry)
	return &Claim{Entry: entry}, nil
}

func (s *memoryStore) Ack(ctx context.Context, claim *Claim) error {
	s.mu.Lock()
	s.release(claim.Entry.ID)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Requeue(ctx context.Context, claim *Claim, entry Entry) error {
	s.mu.Lock()
	s.release(claim.Entry.ID)
	s.pending = append(s.pending, entry)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Bury(ctx context.Context, claim *Claim, entry Entry) error {
	s.mu.Lock()
	s.release(claim.Entry.ID)
	s.dead = append(s.dead, entry)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Recover(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	moved := int64(len(s.processing))
	s.pending = append(s.processing, s.pending...)
	s.processing = nil
	return moved, nil
}

// release drops the claimed entry from processing; callers hold mu.
func (s *memoryStore) release(id string) {
	for i, entry := range s.processing {
		if entry.ID == id {
			s.processing = append(s.processing[:i], s.processing[i+1:]...)
			return
		}
	}
}

func (s *memoryStore) Len(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.pending)), nil
}

func (s *memoryStore) DeadLen(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.dead)), nil
}
