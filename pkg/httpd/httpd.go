// Package httpd 提供进程的 HTTP 传输适配器
//
// 每个运行时实例持有一个 [Server]，按进程挂载两类端点：
//
//	POST /<id>/<message>   线路消息端点，发送者由 User-Agent: libprocess/<pid> 标识
//	GET  /<id><route>      HTTP 路由端点，由 Process.HandleHTTP 处理
//
// 未匹配的路径一律返回 404，不产生任何副作用。
//
// 确认模式（acks）下，消息端点成功时返回 202，失败时返回 404；
// 非确认模式下消息端点总是返回空的 200，处理结果对远端不可见。
package httpd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/lwmacct/251217-go-pkg-process/pkg/pid"
	"github.com/lwmacct/251217-go-pkg-process/pkg/process"
)

// ProtocolName 线路协议名称，User-Agent 前缀
const ProtocolName = "libprocess"

// UserAgent 返回发送者标记 "libprocess/<pid>"
func UserAgent(from pid.PID) string {
	return ProtocolName + "/" + from.String()
}

// ParseUserAgent 从 User-Agent 解析发送者 PID
func ParseUserAgent(ua string) (pid.PID, error) {
	tag, ok := strings.CutPrefix(ua, ProtocolName+"/")
	if !ok {
		return pid.PID{}, fmt.Errorf("%w: user agent %q", pid.ErrMalformed, ua)
	}
	return pid.Parse(tag)
}

// InboundFunc 入站消息投递函数
// 运行时通过它接管入站消息（统计、日志、异常隔离）
type InboundFunc func(p process.Process, name string, from pid.PID, body []byte) error

type endpointKind int

const (
	kindMessage endpointKind = iota
	kindRoute
)

// endpoint 一个已挂载的端点
type endpoint struct {
	owner process.Process
	id    string // 所属进程名称，Unmount 按名称匹配
	kind  endpointKind
	name  string // 消息名称或路由路径
}

// Server HTTP 传输适配器
type Server struct {
	listener net.Listener
	server   *http.Server
	acks     bool
	inbound  InboundFunc
	logger   *slog.Logger

	mu        sync.RWMutex
	endpoints map[string]endpoint
}

// Option Server 配置选项
type Option func(*Server)

// WithAcks 启用确认模式
func WithAcks(acks bool) Option {
	return func(s *Server) {
		s.acks = acks
	}
}

// WithLogger 设置日志器
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithInbound 设置入站消息投递函数
func WithInbound(fn InboundFunc) Option {
	return func(s *Server) {
		if fn != nil {
			s.inbound = fn
		}
	}
}

// New 在已绑定的 listener 上创建 Server
func New(listener net.Listener, opts ...Option) *Server {
	s := &Server{
		listener:  listener,
		logger:    slog.Default(),
		endpoints: make(map[string]endpoint),
	}
	s.inbound = func(p process.Process, name string, from pid.PID, body []byte) error {
		return p.HandleMessage(name, from, body)
	}

	for _, opt := range opts {
		opt(s)
	}

	s.server = &http.Server{
		ReadHeaderTimeout: 5 * time.Second,
		// 流式路由可能长时间写出，不设置 WriteTimeout
		IdleTimeout: 120 * time.Second,
		Handler: h2c.NewHandler(s, &http2.Server{
			IdleTimeout: 120 * time.Second,
		}),
	}
	return s
}

// Addr 返回监听地址
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Acks 是否为确认模式
func (s *Server) Acks() bool {
	return s.acks
}

// Serve 开始接受连接，阻塞直到 Shutdown 或 Close
func (s *Server) Serve() error {
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "failed to serve process transport")
	}
	return nil
}

// Shutdown 优雅关闭，等待进行中的请求完成
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "failed to shutdown process transport")
	}
	return nil
}

// Close 立即关闭，未 Serve 时也会释放 listener
func (s *Server) Close() error {
	err := s.server.Close()
	if lerr := s.listener.Close(); lerr != nil && !errors.Is(lerr, net.ErrClosed) && err == nil {
		err = lerr
	}
	return err
}

// ═══════════════════════════════════════════════════════════════════════════
// 挂载
// ═══════════════════════════════════════════════════════════════════════════

// Mount 挂载进程声明的全部端点
// 任一路径已被占用时不挂载任何端点
func (s *Server) Mount(p process.Process) error {
	id := p.PID().ID
	if id == "" {
		return fmt.Errorf("mount: %w", process.ErrNotBound)
	}

	pending := make(map[string]endpoint)
	for _, route := range p.RoutePaths() {
		path := "/" + id + route
		pending[path] = endpoint{owner: p, id: id, kind: kindRoute, name: route}
	}
	for _, message := range p.MessageNames() {
		path := "/" + id + "/" + message
		if _, dup := pending[path]; dup {
			return fmt.Errorf("mount %s: message and route collide at %s", id, path)
		}
		pending[path] = endpoint{owner: p, id: id, kind: kindMessage, name: message}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for path := range pending {
		if _, exists := s.endpoints[path]; exists {
			return fmt.Errorf("mount %s: path %s already mounted", id, path)
		}
	}
	for path, ep := range pending {
		s.endpoints[path] = ep
		s.logger.Debug("mounted endpoint", "path", path, "process", id)
	}
	return nil
}

// Unmount 移除属于该进程的端点，其他端点不受影响
func (s *Server) Unmount(p process.Process) {
	id := p.PID().ID
	if id == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for path, ep := range s.endpoints {
		if ep.id == id {
			delete(s.endpoints, path)
			s.logger.Debug("unmounted endpoint", "path", path)
		}
	}
}

// Mounted 返回已挂载的路径数量
func (s *Server) Mounted() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.endpoints)
}

// ═══════════════════════════════════════════════════════════════════════════
// 请求处理
// ═══════════════════════════════════════════════════════════════════════════

// ServeHTTP 实现 http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	ep, ok := s.endpoints[r.URL.Path]
	s.mu.RUnlock()

	switch {
	case ok && ep.kind == kindMessage && r.Method == http.MethodPost:
		s.serveMessage(w, r, ep)
	case ok && ep.kind == kindRoute && (r.Method == http.MethodGet || r.Method == http.MethodHead):
		s.serveRoute(w, r, ep)
	default:
		http.NotFound(w, r)
	}
}

// serveMessage 处理线路消息
func (s *Server) serveMessage(w http.ResponseWriter, r *http.Request, ep endpoint) {
	self := ep.owner.PID()

	from, err := ParseUserAgent(r.Header.Get("User-Agent"))
	if err != nil {
		s.logger.Error("unknown process user agent",
			"user_agent", r.Header.Get("User-Agent"), "process", self.ID, "message", ep.name)
		w.WriteHeader(http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Warn("failed to read message body", "process", self.ID, "message", ep.name, "error", err)
		s.ack(w, false)
		return
	}

	s.logger.Debug("delivering message", "message", ep.name, "to", self.String(), "from", from.String())
	err = s.deliver(ep, from, body)
	s.ack(w, err == nil)
}

// ack 写出消息端点的响应
func (s *Server) ack(w http.ResponseWriter, ok bool) {
	if !s.acks {
		w.WriteHeader(http.StatusOK)
		return
	}
	if ok {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (s *Server) deliver(ep endpoint, from pid.PID, body []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in message handler",
				"process", ep.owner.PID().ID,
				"message", ep.name,
				"error", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("panic in message handler: %v", r)
		}
	}()
	return s.inbound(ep.owner, ep.name, from, body)
}

// serveRoute 处理 HTTP 路由，流式片段逐个写出并刷新
func (s *Server) serveRoute(w http.ResponseWriter, r *http.Request, ep endpoint) {
	self := ep.owner.PID()
	wroteHeader := false

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("panic in route handler",
				"process", self.ID,
				"route", ep.name,
				"error", rec,
				"stack", string(debug.Stack()))
			if !wroteHeader {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}
	}()

	resp, err := ep.owner.HandleHTTP(ep.name, r)
	if err != nil {
		s.logger.Warn("route handler failed", "process", self.ID, "route", ep.name, "error", err)
		if errors.Is(err, process.ErrUnknownRoute) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if resp == nil {
		resp = &process.Response{}
	}

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	wroteHeader = true

	if len(resp.Body) > 0 {
		if _, err := w.Write(resp.Body); err != nil {
			return
		}
	}
	if resp.Stream == nil {
		return
	}

	flusher, _ := w.(http.Flusher)
	for chunk := range resp.Stream {
		if _, err := w.Write(chunk); err != nil {
			s.logger.Debug("stream aborted", "process", self.ID, "route", ep.name, "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		if r.Context().Err() != nil {
			return
		}
	}
}
