package process

import (
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/lwmacct/251217-go-pkg-process/pkg/pid"
)

// MessageHandler 消息处理函数
type MessageHandler func(from pid.PID, body []byte) error

// RouteHandler HTTP 路由处理函数
type RouteHandler func(r *http.Request) (*Response, error)

// Base 基础进程实现
// 以显式的能力表代替按名称动态查找方法
type Base struct {
	name string

	mu       sync.RWMutex
	runtime  Runtime
	self     pid.PID
	bound    bool
	messages map[string]MessageHandler
	routes   map[string]RouteHandler
}

// New 创建基础进程，name 为空时由运行时生成名称
func New(name string) *Base {
	return &Base{
		name:     name,
		messages: make(map[string]MessageHandler),
		routes:   make(map[string]RouteHandler),
	}
}

// Install 注册消息处理函数
func (b *Base) Install(message string, h MessageHandler) error {
	if message == "" || strings.Contains(message, "/") {
		return fmt.Errorf("invalid message name %q", message)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bound {
		return fmt.Errorf("install %q: %w", message, ErrAlreadyBound)
	}
	b.messages[message] = h
	return nil
}

// Route 注册 HTTP 路由，path 自动补全前导 /
func (b *Base) Route(path string, h RouteHandler) error {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if path == "/" {
		return fmt.Errorf("invalid route path %q", path)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bound {
		return fmt.Errorf("route %q: %w", path, ErrAlreadyBound)
	}
	b.routes[path] = h
	return nil
}

// Name 实现 Process 接口
func (b *Base) Name() string { return b.name }

// Bind 实现 Process 接口
func (b *Base) Bind(rt Runtime, self pid.PID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bound {
		return fmt.Errorf("bind %s: %w", self, ErrAlreadyBound)
	}
	b.runtime = rt
	b.self = self
	b.bound = true
	return nil
}

// PID 实现 Process 接口
func (b *Base) PID() pid.PID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.self
}

// HandleMessage 实现 Process 接口
func (b *Base) HandleMessage(name string, from pid.PID, body []byte) error {
	b.mu.RLock()
	h, ok := b.messages[name]
	b.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMessage, name)
	}
	return h(from, body)
}

// HandleHTTP 实现 Process 接口
func (b *Base) HandleHTTP(path string, r *http.Request) (*Response, error) {
	b.mu.RLock()
	h, ok := b.routes[path]
	b.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRoute, path)
	}
	return h(r)
}

// MessageNames 实现 Process 接口，结果已排序
func (b *Base) MessageNames() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Sorted(maps.Keys(b.messages))
}

// RoutePaths 实现 Process 接口，结果已排序
func (b *Base) RoutePaths() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Sorted(maps.Keys(b.routes))
}

// ═══════════════════════════════════════════════════════════════════════════
// 出站操作
// ═══════════════════════════════════════════════════════════════════════════

// Send 以自身为发送者投递消息
func (b *Base) Send(to pid.PID, method string, body []byte) error {
	rt, self, err := b.binding()
	if err != nil {
		return err
	}
	return rt.SendFrom(self, to, method, body)
}

// Link 关注 to 的终止
func (b *Base) Link(to pid.PID) error {
	rt, self, err := b.binding()
	if err != nil {
		return err
	}
	return rt.Link(self, to)
}

// Terminate 终止自身
func (b *Base) Terminate() error {
	rt, self, err := b.binding()
	if err != nil {
		return err
	}
	rt.Terminate(self)
	return nil
}

func (b *Base) binding() (Runtime, pid.PID, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.bound {
		return nil, pid.PID{}, ErrNotBound
	}
	return b.runtime, b.self, nil
}
