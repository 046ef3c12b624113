package actor

import (
	"context"
	"errors"
)

// ═══════════════════════════════════════════════════════════════════════════
// Context 工具函数
// ═══════════════════════════════════════════════════════════════════════════

// MergeContextsWithCancel 合并两个 context，任一取消则返回的 context 也取消
// 调用者负责在不再需要时调用 cancel 以释放资源
func MergeContextsWithCancel(parent, child context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if child == nil {
		return context.WithCancel(parent)
	}

	ctx, cancel := context.WithCancel(parent)

	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-child.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// IsContextError 检查错误是否为 context 相关错误
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ═══════════════════════════════════════════════════════════════════════════
// 通道工具函数
// ═══════════════════════════════════════════════════════════════════════════

// TrySend 尝试非阻塞发送到通道
// 如果通道为 nil 或已满，返回 false
func TrySend[T any](ch chan<- T, value T) bool {
	if ch == nil {
		return false
	}
	select {
	case ch <- value:
		return true
	default:
		return false
	}
}
