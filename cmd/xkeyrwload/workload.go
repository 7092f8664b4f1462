package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync/atomic"
	"time"

	retry "github.com/avast/retry-go/v5"
	"golang.org/x/sync/errgroup"

	"github.com/omeyang/lockkit/pkg/sync/xkeyrw"
)

const (
	defaultKeys     = 16
	defaultReaders  = 8
	defaultWriters  = 4
	defaultShards   = 32
	defaultDuration = 5 * time.Second
)

// workloadConfig 描述一次负载运行。
type workloadConfig struct {
	Keys     int
	Readers  int
	Writers  int
	Shards   int
	Duration time.Duration
	Try      bool
}

func defaultWorkloadConfig() workloadConfig {
	return workloadConfig{
		Keys:     defaultKeys,
		Readers:  defaultReaders,
		Writers:  defaultWriters,
		Shards:   defaultShards,
		Duration: defaultDuration,
	}
}

func (c workloadConfig) validate() error {
	if c.Keys <= 0 {
		return fmt.Errorf("keys must be positive, got %d", c.Keys)
	}
	if c.Readers < 0 || c.Writers < 0 {
		return fmt.Errorf("readers/writers must be non-negative, got %d/%d", c.Readers, c.Writers)
	}
	if c.Readers+c.Writers == 0 {
		return errors.New("at least one reader or writer required")
	}
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %v", c.Duration)
	}
	return nil
}

// keyState 记录单个 key 上当前活跃的持有者，用于运行时不变量校验。
type keyState struct {
	readers atomic.Int64
	writers atomic.Int64
}

// workloadResult 汇总一次负载运行的观测结果。
type workloadResult struct {
	cfg        workloadConfig
	readOps    atomic.Int64
	writeOps   atomic.Int64
	wouldBlock atomic.Int64
	violations atomic.Int64
	leaked     int
	elapsed    time.Duration
}

func (r *workloadResult) ok() bool {
	return r.violations.Load() == 0 && r.leaked == 0
}

func (r *workloadResult) print(w io.Writer) {
	mode := "blocking"
	if r.cfg.Try {
		mode = "try+backoff"
	}
	fmt.Fprintf(w, "模式:       %s\n", mode)
	fmt.Fprintf(w, "运行时长:   %v\n", r.elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "读操作:     %d\n", r.readOps.Load())
	fmt.Fprintf(w, "写操作:     %d\n", r.writeOps.Load())
	fmt.Fprintf(w, "WouldBlock: %d\n", r.wouldBlock.Load())
	fmt.Fprintf(w, "不变量违例: %d\n", r.violations.Load())
	fmt.Fprintf(w, "条目泄漏:   %d\n", r.leaked)
}

// runWorkload 按配置执行负载并校验不变量。
func runWorkload(ctx context.Context, cfg workloadConfig) (*workloadResult, error) {
	kl, err := xkeyrw.New(xkeyrw.WithShardCount(cfg.Shards))
	if err != nil {
		return nil, err
	}

	keys := make([]string, cfg.Keys)
	states := make([]keyState, cfg.Keys)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%04d", i)
	}

	result := &workloadResult{cfg: cfg}
	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	start := time.Now()
	g, runCtx := errgroup.WithContext(runCtx)

	for i := 0; i < cfg.Readers; i++ {
		g.Go(func() error {
			return workerLoop(runCtx, kl, keys, states, result, xkeyrw.ModeRead, cfg.Try)
		})
	}
	for i := 0; i < cfg.Writers; i++ {
		g.Go(func() error {
			return workerLoop(runCtx, kl, keys, states, result, xkeyrw.ModeWrite, cfg.Try)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	result.elapsed = time.Since(start)

	// 所有 worker 已退出，注册表必须为空，否则存在条目泄漏。
	result.leaked = kl.Len()
	if err := kl.Close(); err != nil {
		return nil, err
	}
	return result, nil
}

// workerLoop 反复获取-校验-释放，直到 ctx 结束。
func workerLoop(ctx context.Context, kl xkeyrw.Locker, keys []string, states []keyState,
	result *workloadResult, mode xkeyrw.Mode, useTry bool) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		idx := rand.IntN(len(keys))

		var guard xkeyrw.Guard
		var err error
		if useTry {
			guard, err = tryAcquireWithBackoff(ctx, kl, keys[idx], mode, result)
		} else if mode == xkeyrw.ModeWrite {
			guard, err = kl.Lock(ctx, keys[idx])
		} else {
			guard, err = kl.RLock(ctx, keys[idx])
		}
		if err != nil {
			// ctx 到期（或 Close 竞争）是正常退出路径
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
				errors.Is(err, xkeyrw.ErrClosed) || errors.Is(err, xkeyrw.ErrWouldBlock) {
				continue
			}
			return err
		}

		verifyHolder(&states[idx], mode, result)
		if err := guard.Unlock(); err != nil {
			return err
		}
	}
}

// verifyHolder 在持锁期间校验读写锁不变量：
// 写者独占（无其他写者、无读者）、读者期间无写者。
func verifyHolder(st *keyState, mode xkeyrw.Mode, result *workloadResult) {
	if mode == xkeyrw.ModeWrite {
		if st.writers.Add(1) != 1 || st.readers.Load() != 0 {
			result.violations.Add(1)
		}
		result.writeOps.Add(1)
		st.writers.Add(-1)
		return
	}
	st.readers.Add(1)
	if st.writers.Load() != 0 {
		result.violations.Add(1)
	}
	result.readOps.Add(1)
	st.readers.Add(-1)
}

// tryAcquireWithBackoff 用非阻塞获取 + 指数退避重试模拟阻塞语义，
// 同时统计 WouldBlock 次数。
func tryAcquireWithBackoff(ctx context.Context, kl xkeyrw.Locker, key string,
	mode xkeyrw.Mode, result *workloadResult) (xkeyrw.Guard, error) {
	var guard xkeyrw.Guard
	retrier := retry.New(
		retry.Context(ctx),
		retry.UntilSucceeded(), // 无限重试，由 ctx 终止
		retry.RetryIf(func(err error) bool { return errors.Is(err, xkeyrw.ErrWouldBlock) }),
		retry.Delay(100*time.Microsecond),
		retry.MaxDelay(5*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	err := retrier.Do(func() error {
		var tryErr error
		if mode == xkeyrw.ModeWrite {
			guard, tryErr = kl.TryLock(key)
		} else {
			guard, tryErr = kl.TryRLock(key)
		}
		if errors.Is(tryErr, xkeyrw.ErrWouldBlock) {
			result.wouldBlock.Add(1)
		}
		return tryErr
	})
	if err != nil {
		return nil, err
	}
	return guard, nil
}
