package actor

import "sync"

var (
	defaultMu  sync.Mutex
	defaultCtx *Context
)

// Default 返回进程级共享实例，首次调用时创建并启动
//
// cfg 为 nil 时接受任何已存在的实例；已存在的实例与 cfg 描述的端点不一致时
// 返回 ErrConflictingDefault，而不是静默返回不匹配的实例。
func Default(cfg *Config) (*Context, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultCtx != nil {
		if cfg != nil && !cfg.sameEndpoint(defaultCtx.config) {
			return nil, ErrConflictingDefault
		}
		return defaultCtx, nil
	}

	c, err := NewContext(cfg)
	if err != nil {
		return nil, err
	}
	if err := c.Start(); err != nil {
		_ = c.Stop()
		return nil, err
	}
	defaultCtx = c
	return c, nil
}

// ResetDefault 停止并丢弃共享实例，用于测试隔离
func ResetDefault() error {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultCtx == nil {
		return nil
	}
	err := defaultCtx.Stop()
	defaultCtx = nil
	return err
}
