package xkeyrw

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// keyRWImpl 是 Locker 的分片实现。
type keyRWImpl struct {
	shards   []shard
	opts     *options
	closed   atomic.Bool
	keyCount atomic.Int64
	metrics  *metrics

	// closeCtx 在 Close 时取消，用于唤醒所有挂起在信号量上的等待者。
	closeCtx    context.Context
	closeCancel context.CancelFunc
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

// lockEntry 表示一个 key 的锁条目。
type lockEntry struct {
	rw *rwLock
	// refcnt 跟踪引用此条目的 goroutine 数量（持有者 + 等待者 +
	// 进行中的 Try 尝试）。归零时条目从 map 中删除。
	refcnt atomic.Int32
}

// guard 实现 Guard 接口。
type guard struct {
	kl    *keyRWImpl
	key   string
	mode  Mode
	entry *lockEntry
	done  atomic.Bool
}

func newKeyRWImpl(opts *options) *keyRWImpl {
	shards := make([]shard, opts.shardCount)
	for i := range shards {
		shards[i].entries = make(map[string]*lockEntry)
	}
	closeCtx, closeCancel := context.WithCancel(context.Background())
	return &keyRWImpl{
		shards:      shards,
		opts:        opts,
		closeCtx:    closeCtx,
		closeCancel: closeCancel,
	}
}

func (kl *keyRWImpl) getShard(key string) *shard {
	h := xxhash.Sum64String(key)
	return &kl.shards[h&kl.opts.shardMask]
}

// getOrCreate 获取或创建 lockEntry，并增加引用计数。
// 引用计数的递增发生在分片锁内，使并发的清理路径（releaseRef）
// 不可能在本次获取使用条目之前观察到 refcnt == 0 并将其删除。
func (kl *keyRWImpl) getOrCreate(key string) (*lockEntry, error) {
	s := kl.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if kl.closed.Load() {
		return nil, ErrClosed
	}

	e, ok := s.entries[key]
	if !ok {
		if kl.opts.maxKeys > 0 {
			// 使用 CAS 严格限制 key 数量，避免跨分片并发突破上限。
			for {
				cur := kl.keyCount.Load()
				if cur >= int64(kl.opts.maxKeys) {
					return nil, ErrMaxKeysExceeded
				}
				if kl.keyCount.CompareAndSwap(cur, cur+1) {
					break
				}
			}
		} else {
			kl.keyCount.Add(1)
		}
		e = &lockEntry{rw: newRWLock()}
		s.entries[key] = e
	}
	e.refcnt.Add(1)
	return e, nil
}

// releaseRef 减少引用计数，归零时从 map 删除。
// 删除前校验 map 仍指向同一条目；正确实现下该校验不会失败，
// 仅防御条目被替换的病态情况。
func (kl *keyRWImpl) releaseRef(key string, entry *lockEntry) {
	s := kl.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.refcnt.Add(-1) == 0 {
		if cur, ok := s.entries[key]; ok && cur == entry {
			delete(s.entries, key)
			kl.keyCount.Add(-1)
		}
	}
}

// acquire 是 RLock/Lock 的公共实现。
// 分片锁仅覆盖 O(1) 的 map/refcnt 操作，绝不跨越可能挂起的信号量获取，
// 因此不同 key 之间不会互相阻塞。
func (kl *keyRWImpl) acquire(ctx context.Context, key string, mode Mode) (Guard, error) {
	if ctx == nil {
		panic("xkeyrw: nil Context")
	}
	// 快速检查：ctx 已取消时避免进入 getOrCreate 造成不必要的锁竞争。
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, ErrInvalidKey
	}
	if kl.closed.Load() {
		return nil, ErrClosed
	}
	entry, err := kl.getOrCreate(key)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	// Close 需要唤醒挂起的等待者，而信号量只认 ctx，
	// 因此挂一个在 closeCtx 结束时取消本次获取的回调。
	acqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(kl.closeCtx, cancel)
	defer stop()

	if err := entry.rw.acquire(acqCtx, mode); err != nil {
		// 被取消的等待者必须归还第 1 步递增的引用，
		// 否则被放弃的等待会把条目永远钉在 map 里。
		kl.releaseRef(key, entry)
		if cerr := ctx.Err(); cerr != nil {
			kl.recordAcquire(ctx, mode, outcomeCancelled, start)
			return nil, cerr
		}
		kl.recordAcquire(ctx, mode, outcomeClosed, start)
		return nil, ErrClosed
	}
	kl.recordAcquire(ctx, mode, outcomeAcquired, start)
	return &guard{kl: kl, key: key, mode: mode, entry: entry}, nil
}

// tryAcquire 是 TryRLock/TryLock 的公共实现。
// 失败时撤销引用计数递增并触发条目清理，对外不可见任何状态变化。
func (kl *keyRWImpl) tryAcquire(key string, mode Mode) (Guard, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	if kl.closed.Load() {
		return nil, ErrClosed
	}
	entry, err := kl.getOrCreate(key)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if !entry.rw.tryAcquire(mode) {
		kl.releaseRef(key, entry)
		kl.recordAcquire(context.Background(), mode, outcomeWouldBlock, start)
		return nil, ErrWouldBlock
	}
	kl.recordAcquire(context.Background(), mode, outcomeAcquired, start)
	return &guard{kl: kl, key: key, mode: mode, entry: entry}, nil
}

func (kl *keyRWImpl) RLock(ctx context.Context, key string) (Guard, error) {
	return kl.acquire(ctx, key, ModeRead)
}

func (kl *keyRWImpl) Lock(ctx context.Context, key string) (Guard, error) {
	return kl.acquire(ctx, key, ModeWrite)
}

func (kl *keyRWImpl) TryRLock(key string) (Guard, error) {
	return kl.tryAcquire(key, ModeRead)
}

func (kl *keyRWImpl) TryLock(key string) (Guard, error) {
	return kl.tryAcquire(key, ModeWrite)
}

func (kl *keyRWImpl) Len() int {
	return int(max(kl.keyCount.Load(), 0))
}

func (kl *keyRWImpl) Keys() []string {
	keys := make([]string, 0, max(kl.keyCount.Load(), 0))
	for i := range kl.shards {
		s := &kl.shards[i]
		s.mu.Lock()
		for k := range s.entries {
			keys = append(keys, k)
		}
		s.mu.Unlock()
	}
	return keys
}

func (kl *keyRWImpl) Close() error {
	if !kl.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	kl.closeCancel()
	if kl.metrics != nil {
		kl.metrics.close()
	}
	return nil
}

func (kl *keyRWImpl) recordAcquire(ctx context.Context, mode Mode, outcome string, start time.Time) {
	if kl.metrics == nil {
		return
	}
	kl.metrics.recordAcquire(ctx, mode, outcome, time.Since(start))
}

// guard 方法

func (g *guard) Unlock() error {
	if !g.done.CompareAndSwap(false, true) {
		return ErrLockNotHeld
	}
	// 先释放底层锁，再归还引用：条目的删除资格由引用计数决定，
	// 而本 Guard 自身就是其中一个被计数的引用。
	g.entry.rw.release(g.mode)
	g.kl.releaseRef(g.key, g.entry)
	if g.kl.metrics != nil {
		g.kl.metrics.recordRelease(context.Background(), g.mode)
	}
	return nil
}

func (g *guard) Key() string {
	return g.key
}

func (g *guard) Mode() Mode {
	return g.mode
}

// 编译期接口检查。
var (
	_ Locker = (*keyRWImpl)(nil)
	_ Guard  = (*guard)(nil)
)
