package xkeyrw

import "errors"

var (
	// ErrWouldBlock 表示非阻塞获取失败：该 key 的锁当前以冲突模式被持有，
	// 或该 key 上存在等待者。注册表状态未发生任何改变。
	ErrWouldBlock = errors.New("xkeyrw: would block")

	// ErrLockNotHeld 表示锁已被释放。
	// Unlock 第二次及后续调用时返回此错误。
	ErrLockNotHeld = errors.New("xkeyrw: lock not held")

	// ErrClosed 表示 Locker 已关闭。
	// Close 后调用 RLock/Lock/TryRLock/TryLock 返回此错误。
	ErrClosed = errors.New("xkeyrw: closed")

	// ErrInvalidKey 表示 key 为空字符串。
	ErrInvalidKey = errors.New("xkeyrw: invalid key")

	// ErrInvalidShardCount 表示分片数配置非法（必须为 2 的幂且不超过上限）。
	ErrInvalidShardCount = errors.New("xkeyrw: invalid shard count")

	// ErrMaxKeysExceeded 表示已达到最大 key 数量限制。
	ErrMaxKeysExceeded = errors.New("xkeyrw: max keys exceeded")
)
