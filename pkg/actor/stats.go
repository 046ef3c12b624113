package actor

import (
	"sync"
	"sync/atomic"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// 进程统计信息
// ═══════════════════════════════════════════════════════════════════════════

// ProcessStats 进程运行时统计信息
type ProcessStats struct {
	// 消息计数
	MessagesReceived int64 // 接收的消息总数
	MessagesHandled  int64 // 成功处理的消息数
	Errors           int64 // 处理失败数

	// 延迟统计
	TotalLatency   time.Duration
	AverageLatency time.Duration
	MaxLatency     time.Duration
	MinLatency     time.Duration

	// 时间戳
	StartedAt     time.Time // 进程 Spawn 时间
	LastMessageAt time.Time
	LastErrorAt   time.Time

	LastError error
}

// Clone 克隆统计信息
func (s *ProcessStats) Clone() *ProcessStats {
	out := *s
	return &out
}

// StatsCollector 线程安全的统计收集器
type StatsCollector struct {
	mu    sync.RWMutex
	stats ProcessStats
}

// NewStatsCollector 创建统计收集器
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{
		stats: ProcessStats{
			StartedAt:  time.Now(),
			MinLatency: time.Duration(1<<63 - 1), // 最大值，确保第一次会被更新
		},
	}
}

// RecordReceived 记录接收消息
func (c *StatsCollector) RecordReceived() {
	c.mu.Lock()
	c.stats.MessagesReceived++
	c.stats.LastMessageAt = time.Now()
	c.mu.Unlock()
}

// RecordHandled 记录成功处理消息
func (c *StatsCollector) RecordHandled(latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.MessagesHandled++
	c.stats.TotalLatency += latency
	c.stats.AverageLatency = c.stats.TotalLatency / time.Duration(c.stats.MessagesHandled)

	if latency > c.stats.MaxLatency {
		c.stats.MaxLatency = latency
	}
	if latency < c.stats.MinLatency {
		c.stats.MinLatency = latency
	}
}

// RecordError 记录处理失败
func (c *StatsCollector) RecordError(err error) {
	c.mu.Lock()
	c.stats.Errors++
	c.stats.LastError = err
	c.stats.LastErrorAt = time.Now()
	c.mu.Unlock()
}

// Stats 获取统计快照
func (c *StatsCollector) Stats() *ProcessStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := c.stats.Clone()
	if out.MessagesHandled == 0 {
		out.MinLatency = 0
	}
	return out
}

// ═══════════════════════════════════════════════════════════════════════════
// 实例统计
// ═══════════════════════════════════════════════════════════════════════════

// Stats 运行时实例统计
type Stats struct {
	Processes        int64 // 当前存活进程数
	LocalDeliveries  int64 // 本地投递次数
	RemoteSends      int64 // 已入队的远程投递次数
	DeadLetters      int64 // 死信（目标不存在）
	DeliveryFailures int64 // 远程投递失败
	HandlerFailures  int64 // 处理函数返回错误或 panic
	StartTime        time.Time
}

// counters 实例内部计数器
type counters struct {
	processes        atomic.Int64
	localDeliveries  atomic.Int64
	remoteSends      atomic.Int64
	deadLetters      atomic.Int64
	deliveryFailures atomic.Int64
	handlerFailures  atomic.Int64
	startTime        time.Time
}

func (c *counters) snapshot() *Stats {
	return &Stats{
		Processes:        c.processes.Load(),
		LocalDeliveries:  c.localDeliveries.Load(),
		RemoteSends:      c.remoteSends.Load(),
		DeadLetters:      c.deadLetters.Load(),
		DeliveryFailures: c.deliveryFailures.Load(),
		HandlerFailures:  c.handlerFailures.Load(),
		StartTime:        c.startTime,
	}
}
