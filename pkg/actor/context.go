package actor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lwmacct/251217-go-pkg-process/pkg/httpd"
	"github.com/lwmacct/251217-go-pkg-process/pkg/pid"
	"github.com/lwmacct/251217-go-pkg-process/pkg/process"
)

// AnonymousID 不经由进程发送时使用的发送者名称
const AnonymousID = "anonymous"

// Transport 传输适配器契约，由 [httpd.Server] 实现
type Transport interface {
	Mount(p process.Process) error
	Unmount(p process.Process)
	Serve() error
	Shutdown(ctx context.Context) error
	Close() error
	Addr() net.Addr
}

type lifecycle int

const (
	stateIdle lifecycle = iota
	stateRunning
	stateStopped
)

// Context 运行时实例
// 管理进程注册表、链接关系、出站调度和传输层，是唯一做路由决策（本地调用或远程投递）的组件
type Context struct {
	config *Config
	logger *slog.Logger

	// 本实例端点，所有 PID 都由它铸造
	ip   string
	port int
	self pid.PID

	transport Transport
	client    *resty.Client

	// 注册表，spawn/terminate/link 共用一把锁
	mu        sync.Mutex
	processes map[string]process.Process
	reserved  map[string]struct{} // Bind/挂载中的名称
	stats     map[string]*StatsCollector
	links     map[string]map[pid.PID]struct{}
	notified  map[string]map[pid.PID]struct{} // 已收到终止通知的关注方，按已终止名称索引

	// 生命周期
	stateMu sync.RWMutex
	state   lifecycle
	cancel  context.CancelFunc
	group   *errgroup.Group

	// 出站调度
	outbox chan envelope
	peers  map[string]chan envelope // 仅由调度 goroutine 访问

	counters counters
}

// NewContext 创建运行时实例并绑定监听端口
// 端口在构造时绑定，Spawn 可以在 Start 之前调用
func NewContext(cfg *Config) (*Context, error) {
	cfg = cfg.withDefaults()

	listener, err := net.Listen("tcp", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("bind %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	c := newContext(cfg, listener.Addr().(*net.TCPAddr))
	c.transport = httpd.New(listener,
		httpd.WithAcks(cfg.Acks),
		httpd.WithLogger(cfg.Logger),
		httpd.WithInbound(c.inbound),
	)
	return c, nil
}

// NewContextWithTransport 使用自定义传输层创建运行时实例
func NewContextWithTransport(cfg *Config, transport Transport) *Context {
	cfg = cfg.withDefaults()
	addr, _ := transport.Addr().(*net.TCPAddr)
	if addr == nil {
		addr = &net.TCPAddr{IP: net.ParseIP(cfg.Host), Port: cfg.Port}
	}
	c := newContext(cfg, addr)
	c.transport = transport
	return c
}

func newContext(cfg *Config, addr *net.TCPAddr) *Context {
	ip := advertiseIP(cfg, addr)
	c := &Context{
		config:    cfg,
		logger:    cfg.Logger,
		ip:        ip,
		port:      addr.Port,
		self:      pid.New(AnonymousID, ip, addr.Port),
		client:    resty.New().SetTimeout(cfg.SendTimeout),
		processes: make(map[string]process.Process),
		reserved:  make(map[string]struct{}),
		stats:     make(map[string]*StatsCollector),
		links:     make(map[string]map[pid.PID]struct{}),
		notified:  make(map[string]map[pid.PID]struct{}),
		outbox:    make(chan envelope, cfg.OutboxSize),
		peers:     make(map[string]chan envelope),
	}
	c.counters.startTime = time.Now()
	return c
}

// advertiseIP 确定写入 PID 的地址
// 监听在通配地址时使用主机名解析出的地址
func advertiseIP(cfg *Config, addr *net.TCPAddr) string {
	if cfg.AdvertiseIP != "" {
		return cfg.AdvertiseIP
	}
	if addr.IP != nil && !addr.IP.IsUnspecified() {
		return addr.IP.String()
	}

	hostname, err := os.Hostname()
	if err == nil {
		if ips, err := net.LookupIP(hostname); err == nil {
			for _, ip := range ips {
				if v4 := ip.To4(); v4 != nil {
					return v4.String()
				}
			}
		}
	}
	return "127.0.0.1"
}

// PID 返回本实例的匿名发送者 PID
func (c *Context) PID() pid.PID { return c.self }

// IP 返回对外地址
func (c *Context) IP() string { return c.ip }

// Port 返回监听端口
func (c *Context) Port() int { return c.port }

// Config 返回生效的配置
func (c *Context) Config() *Config { return c.config }

// ═══════════════════════════════════════════════════════════════════════════
// 生命周期
// ═══════════════════════════════════════════════════════════════════════════

// Start 启动传输层和出站调度
// 监听端口在构造时已绑定，返回时连接即可被接受
func (c *Context) Start() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	switch c.state {
	case stateRunning:
		return ErrAlreadyStarted
	case stateStopped:
		return ErrStopped
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(c.transport.Serve)
	g.Go(func() error {
		c.dispatcher(gctx, g)
		return nil
	})

	c.cancel = cancel
	c.group = g
	c.state = stateRunning

	c.logger.Info("process context started", "ip", c.ip, "port", c.port, "acks", c.config.Acks)
	return nil
}

// Stop 停止调度并释放传输层
// Stop 之前未 Start 或重复调用均为空操作；停止后不能再 Start。
// 尚未发出的远程投递被取消，等待结果的 Deliver 收到 ErrStopped。
func (c *Context) Stop() error {
	c.stateMu.Lock()
	prev := c.state
	c.state = stateStopped
	c.stateMu.Unlock()

	switch prev {
	case stateStopped:
		return nil
	case stateIdle:
		return c.transport.Close()
	}

	c.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.transport.Shutdown(ctx); err != nil {
		c.logger.Warn("transport shutdown incomplete", "error", err)
		_ = c.transport.Close()
	}

	err := c.group.Wait()
	c.drain()

	c.logger.Info("process context stopped", "ip", c.ip, "port", c.port)
	return err
}

// IsRunning 是否运行中
func (c *Context) IsRunning() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state == stateRunning
}

// ═══════════════════════════════════════════════════════════════════════════
// 注册表
// ═══════════════════════════════════════════════════════════════════════════

// Spawn 注册进程并返回其 PID
// 名称为空时生成唯一名称；名称已被占用时返回 ErrDuplicateName。
// Bind 和挂载在注册表锁外执行，期间名称处于预留状态。
func (c *Context) Spawn(p process.Process) (pid.PID, error) {
	name := p.Name()
	if name == "" {
		name = uuid.NewString()
	}
	if err := validateName(name); err != nil {
		return pid.PID{}, err
	}

	if err := c.reserve(name); err != nil {
		return pid.PID{}, err
	}

	self := pid.New(name, c.ip, c.port)
	if err := p.Bind(c, self); err != nil {
		c.release(self)
		return pid.PID{}, err
	}
	if err := c.transport.Mount(p); err != nil {
		c.release(self)
		return pid.PID{}, fmt.Errorf("spawn %q: %w", name, err)
	}

	c.mu.Lock()
	delete(c.reserved, name)
	delete(c.notified, name)
	c.processes[name] = p
	c.mu.Unlock()
	c.counters.processes.Add(1)

	c.logger.Debug("spawned process", "pid", self.String(),
		"messages", p.MessageNames(), "routes", p.RoutePaths())
	return self, nil
}

// reserve 预留名称
func (c *Context) reserve(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, alive := c.processes[name]
	_, pending := c.reserved[name]
	if alive || pending {
		return fmt.Errorf("spawn %q: %w", name, ErrDuplicateName)
	}
	c.reserved[name] = struct{}{}
	c.stats[name] = NewStatsCollector()
	return nil
}

// release 撤销预留，Bind 期间建立的链接按终止处理
func (c *Context) release(self pid.PID) {
	c.mu.Lock()
	delete(c.reserved, self.ID)
	delete(c.stats, self.ID)
	interested := c.unlinkLocked(self)
	c.mu.Unlock()

	c.notifyTerminated(self, interested)
}

func validateName(name string) error {
	if name == AnonymousID || strings.ContainsAny(name, "/@?#% \t\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Link 记录 p 关注 to 的终止
// 重复链接是幂等的；to 已不存在时立即发送终止通知，每个关注方对同一终止只收到一次
func (c *Context) Link(p, to pid.PID) error {
	if !to.SameEndpoint(c.self) {
		return fmt.Errorf("link %s to %s: %w", p, to, ErrRemoteLink)
	}

	c.mu.Lock()
	_, alive := c.processes[to.ID]
	_, pending := c.reserved[to.ID]
	if !alive && !pending {
		seen, ok := c.notified[to.ID]
		if !ok {
			seen = make(map[pid.PID]struct{})
			c.notified[to.ID] = seen
		}
		_, again := seen[p]
		seen[p] = struct{}{}
		c.mu.Unlock()

		if !again {
			c.notifyTerminated(to, []pid.PID{p})
		}
		return nil
	}
	set, ok := c.links[to.ID]
	if !ok {
		set = make(map[pid.PID]struct{})
		c.links[to.ID] = set
	}
	set[p] = struct{}{}
	c.mu.Unlock()

	c.logger.Debug("linked", "pid", p.String(), "to", to.String())
	return nil
}

// Terminate 移除进程并通知所有链接方
// 幂等：进程不存在时为空操作
func (c *Context) Terminate(p pid.PID) {
	if !p.SameEndpoint(c.self) {
		c.logger.Debug("ignoring terminate for remote process", "pid", p.String())
		return
	}

	removed, interested := c.remove(p)
	if removed {
		c.logger.Info("process terminated", "pid", p.String(), "links", len(interested))
	}
	c.notifyTerminated(p, interested)
}

// remove 从注册表和链接表中移除 p，返回是否存在以及关注方
func (c *Context) remove(p pid.PID) (bool, []pid.PID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	proc, ok := c.processes[p.ID]
	if ok {
		delete(c.processes, p.ID)
		delete(c.stats, p.ID)
		c.counters.processes.Add(-1)
		// 锁内卸载：Unmount 按名称匹配
		c.transport.Unmount(proc)
	}

	interested := c.unlinkLocked(p)
	if ok && len(interested) > 0 {
		seen := make(map[pid.PID]struct{}, len(interested))
		for _, who := range interested {
			seen[who] = struct{}{}
		}
		c.notified[p.ID] = seen
	}
	return ok, interested
}

// unlinkLocked 清除 p 作为目标和关注方的全部链接，返回关注 p 的进程
// 调用方持有 c.mu
func (c *Context) unlinkLocked(p pid.PID) []pid.PID {
	interested := make([]pid.PID, 0, len(c.links[p.ID]))
	for who := range c.links[p.ID] {
		interested = append(interested, who)
	}
	delete(c.links, p.ID)

	for _, table := range []map[string]map[pid.PID]struct{}{c.links, c.notified} {
		for id, set := range table {
			delete(set, p)
			if len(set) == 0 {
				delete(table, id)
			}
		}
	}
	return interested
}

// notifyTerminated 向每个关注方投递终止通知，单个失败不影响其他
func (c *Context) notifyTerminated(dead pid.PID, interested []pid.PID) {
	body := []byte(dead.String())
	for _, who := range interested {
		if err := c.SendFrom(dead, who, process.TerminatedMessage, body); err != nil {
			c.logger.Warn("failed to notify linked process",
				"dead", dead.String(), "linked", who.String(), "error", err)
		}
	}
}

// Lookup 按名称查找进程
func (c *Context) Lookup(id string) (process.Process, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.processes[id]
	return p, ok
}

// Processes 列出所有进程 PID（按名称排序）
func (c *Context) Processes() []pid.PID {
	c.mu.Lock()
	pids := make([]pid.PID, 0, len(c.processes))
	for id := range c.processes {
		pids = append(pids, pid.New(id, c.ip, c.port))
	}
	c.mu.Unlock()

	slices.SortFunc(pids, func(a, b pid.PID) int { return strings.Compare(a.ID, b.ID) })
	return pids
}

// Count 返回进程数量
func (c *Context) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.processes)
}

// Links 返回关注 to 终止的进程数量
func (c *Context) Links(to pid.PID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.links[to.ID])
}

// Stats 获取实例统计
func (c *Context) Stats() *Stats {
	return c.counters.snapshot()
}

// ProcessStats 获取进程统计
func (c *Context) ProcessStats(p pid.PID) (*ProcessStats, bool) {
	c.mu.Lock()
	st, ok := c.stats[p.ID]
	c.mu.Unlock()
	if !ok || !p.SameEndpoint(c.self) {
		return nil, false
	}
	return st.Stats(), true
}

// ═══════════════════════════════════════════════════════════════════════════
// 本地投递
// ═══════════════════════════════════════════════════════════════════════════

// deliverLocal 直接调用本地进程的处理函数，不持有注册表锁
func (c *Context) deliverLocal(from, to pid.PID, method string, body []byte) {
	c.mu.Lock()
	p, ok := c.processes[to.ID]
	st := c.stats[to.ID]
	c.mu.Unlock()

	if !ok {
		c.counters.deadLetters.Add(1)
		c.logger.Warn("dead letter",
			"message", method, "target", to.String(), "sender", from.String(), "error", ErrUnknownPeer)
		return
	}

	c.counters.localDeliveries.Add(1)
	_ = c.invoke(p, st, method, from, body)
}

// inbound 传输层入站消息入口
func (c *Context) inbound(p process.Process, name string, from pid.PID, body []byte) error {
	c.mu.Lock()
	st := c.stats[p.PID().ID]
	c.mu.Unlock()
	return c.invoke(p, st, name, from, body)
}

// invoke 调用处理函数，错误和 panic 只记录，不向上传播
func (c *Context) invoke(p process.Process, st *StatsCollector, name string, from pid.PID, body []byte) (err error) {
	if st == nil {
		st = NewStatsCollector()
	}
	st.RecordReceived()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
			c.logger.Error("panic in process",
				"process", p.PID().String(),
				"message", name,
				"error", r,
				"stack", string(debug.Stack()))
		}
		if err != nil {
			st.RecordError(err)
			c.counters.handlerFailures.Add(1)
			c.logger.Warn("message handler failed",
				"process", p.PID().String(), "message", name, "from", from.String(), "error", err)
			return
		}
		st.RecordHandled(time.Since(start))
	}()

	return p.HandleMessage(name, from, body)
}
