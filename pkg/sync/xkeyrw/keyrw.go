package xkeyrw

import (
	"context"
	"io"
)

// Mode 表示一次锁获取的模式。
type Mode uint8

const (
	// ModeRead 共享读模式，同一 key 上可与任意数量的其他读者共存。
	ModeRead Mode = iota
	// ModeWrite 独占写模式，同一 key 上排斥所有其他读者和写者。
	ModeWrite
)

// String 返回模式名称，用于日志和指标属性。
func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Guard 表示一次成功的锁获取，是该次访问权的唯一凭证。
// Unlock 是幂等的：第一次调用释放锁并返回 nil，后续调用返回 [ErrLockNotHeld]。
type Guard interface {
	// Unlock 释放锁，并在该 key 不再有持有者和等待者时回收其注册表条目。
	// 幂等：第一次调用返回 nil，后续调用返回 [ErrLockNotHeld]。
	Unlock() error

	// Key 返回锁的 key。
	// 即使在 Unlock 之后调用，Key 仍返回原始 key 值。
	Key() string

	// Mode 返回获取时的模式（读或写），在 Guard 生命周期内不变。
	Mode() Mode
}

// Locker 提供基于 key 的进程内读写锁。
// 所有方法都是并发安全的。
type Locker interface {
	io.Closer

	// RLock 阻塞式获取 key 的共享读锁。
	// 支持 ctx 超时/取消，ctx 取消时返回 [context.Canceled] 或 [context.DeadlineExceeded]，
	// 且不在注册表中残留任何引用。
	// Locker 已关闭时返回 [ErrClosed]。key 不得为空字符串，否则返回 [ErrInvalidKey]。
	// ctx 不得为 nil，否则 panic。
	//
	// 当 RLock 处于阻塞等待时，若 Close 与 ctx 取消同时发生，
	// 返回 [ErrClosed] 或 ctx.Err() 均有可能，调用方应同时处理这两类错误。
	RLock(ctx context.Context, key string) (Guard, error)

	// Lock 阻塞式获取 key 的独占写锁。
	// 错误语义与 RLock 一致。
	//
	// 设计决策: 锁是非可重入的（non-reentrant），与 sync.RWMutex 一致。
	// 不提供运行时死锁检测（开销不可接受），由调用方负责避免同一 goroutine
	// 对同一 key 的冲突获取。
	Lock(ctx context.Context, key string) (Guard, error)

	// TryRLock 非阻塞获取 key 的共享读锁。
	// 锁被冲突模式持有（或存在等待者）时返回 (nil, [ErrWouldBlock])，
	// 此时注册表状态与调用前完全一致。
	// Locker 已关闭时返回 (nil, [ErrClosed])。
	// key 不得为空字符串，否则返回 (nil, [ErrInvalidKey])。
	TryRLock(key string) (Guard, error)

	// TryLock 非阻塞获取 key 的独占写锁。
	// 错误语义与 TryRLock 一致。
	TryLock(key string) (Guard, error)

	// Len 返回当前活跃的 key 数量（单次原子读取，瞬时快照）。
	// 比 Keys() 更高效，适用于监控和指标采集。
	// Close 后仍可安全调用，返回值随已持有 Guard 的释放逐渐归零。
	Len() int

	// Keys 返回当前活跃条目的 key 列表（包含持有者和等待者），仅用于调试。
	// 返回值是快照，不保证跨分片原子性。
	// Close 后仍可安全调用，返回值随已持有 Guard 的释放逐渐归零。
	Keys() []string
}

// New 创建一个新的 Locker 实例。
// 每个实例拥有独立的 key 空间和生命周期，实例之间互不干扰；
// 本包不提供进程级单例。
// 配置无效时返回错误（如分片数不是 2 的幂）。
func New(opts ...Option) (Locker, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	kl := newKeyRWImpl(&o)
	if o.meterProvider != nil {
		m, err := newMetrics(o.meterProvider, kl.keyCount.Load)
		if err != nil {
			return nil, err
		}
		kl.metrics = m
	}
	return kl, nil
}
