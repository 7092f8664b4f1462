package xkeyrw

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// totalWeight 是单个 key 的信号量总容量，同时是该 key 并发读者数的上限。
const totalWeight = 1 << 30

// rwLock 是单个 key 的读写原语：基于加权信号量实现，
// 读者占 1 份权重，写者占全部权重，因此读共享、写独占。
// 阻塞获取可被 ctx 取消，等待者按 FIFO 顺序服务（见包文档"公平性"）。
type rwLock struct {
	sem *semaphore.Weighted
}

func newRWLock() *rwLock {
	return &rwLock{sem: semaphore.NewWeighted(totalWeight)}
}

func (m Mode) weight() int64 {
	if m == ModeWrite {
		return totalWeight
	}
	return 1
}

// acquire 以 mode 模式获取锁，不可得时挂起直到可得或 ctx 结束。
func (l *rwLock) acquire(ctx context.Context, mode Mode) error {
	return l.sem.Acquire(ctx, mode.weight())
}

// tryAcquire 以 mode 模式非阻塞获取锁，失败时无副作用。
func (l *rwLock) tryAcquire(mode Mode) bool {
	return l.sem.TryAcquire(mode.weight())
}

// release 释放以 mode 模式持有的锁。
// 每次成功获取必须恰好对应一次 release，由 Guard 的释放契约保证。
func (l *rwLock) release(mode Mode) {
	l.sem.Release(mode.weight())
}
