// Package xkeyrw 提供基于 key 的进程内读写锁。
//
// 适用于需要按业务 key 协调共享/独占访问的场景，如按资源 ID 的并发修改
// 互斥、按文件名的读写协调等。锁的粒度由调用方通过 key 自由划分：
// 同一 key 上任意数量的并发读者，或恰好一个写者，二者不会同时存在；
// 不同 key 之间完全独立，互不阻塞。
//
// # 与 xkeylock 的区别
//
//	特性          xkeyrw                    xkeylock
//	──────────────────────────────────────────────────
//	语义          读写锁（读共享/写独占）    互斥锁
//	Context       ✓ RLock/Lock 支持         ✓ Acquire 支持
//	非阻塞        ✓ TryRLock/TryLock        ✓ TryAcquire
//	Guard         Unlock()+Key()+Mode()     Unlock()+Key()
//
// # 特性
//
//   - 惰性创建：key 的锁状态在首次使用时创建
//   - 确定性回收：引用计数（持有者 + 等待者）归零时条目立即从注册表删除，
//     高基数 key 空间下注册表不会无界增长
//   - Context 支持：RLock/Lock 支持超时和取消（ctx 不得为 nil，否则 panic）
//   - 非阻塞获取：TryRLock/TryLock 失败时返回 [ErrWouldBlock]，无任何副作用
//   - Guard 语义：Unlock 幂等（首次返回 nil，后续返回 [ErrLockNotHeld]）
//   - 分片 map：默认 32 分片，减少管理锁争用
//   - 内存安全：WithMaxKeys(n) 可限制最大 key 数
//   - 关闭语义：Close() 拒绝新请求并唤醒所有等待中的获取，已持有锁不受影响
//   - 可观测性：WithMeterProvider 启用 OpenTelemetry 指标
//
// # 公平性
//
// 单个 key 上的等待者由 golang.org/x/sync/semaphore 按 FIFO 顺序服务：
// 已入队的写者会阻塞其后到达的读者，因此写者不会被持续到来的读者饿死。
// 副作用是只要该 key 存在等待者，TryRLock/TryLock 即失败（即使读容量
// 尚有剩余），即 Try 变体是保守非阻塞的。本包不在底层原语之上提供
// 更强的顺序保证。
//
// # 死锁
//
// 本包不做跨 key 的顺序约束或死锁检测：两个调用方以相反顺序获取
// "A"、"B" 两把锁可能互相等待，与使用任何其他锁一致，由调用方负责避免。
// 锁非可重入，同一 goroutine 在持有某 key 的写锁时再次获取该 key 会
// 自我死锁。建议始终使用带 deadline 的 context 以防止因编程错误导致的
// 永久阻塞。
package xkeyrw
