package actor

import (
	"errors"
	"fmt"

	"github.com/lwmacct/251217-go-pkg-process/pkg/pid"
)

var (
	// ErrDuplicateName 名称已被本实例中的进程占用
	ErrDuplicateName = errors.New("duplicate process name")
	// ErrInvalidName 名称不能用作 PID 或 URL 路径段
	ErrInvalidName = errors.New("invalid process name")
	// ErrUnknownPeer 本地投递目标不存在（只记录日志，不返回给调用方）
	ErrUnknownPeer = errors.New("unknown peer")
	// ErrRemoteLink 只能链接本实例中的进程
	ErrRemoteLink = errors.New("cannot link to remote process")
	// ErrHandlerPanic 消息处理函数 panic
	ErrHandlerPanic = errors.New("panic in message handler")

	// ErrAlreadyStarted 重复启动
	ErrAlreadyStarted = errors.New("context already started")
	// ErrStopped 已停止的实例不能再启动
	ErrStopped = errors.New("context stopped")
	// ErrNotRunning 实例未运行，无法远程投递
	ErrNotRunning = errors.New("context not running")
	// ErrOutboxFull 出站队列已满
	ErrOutboxFull = errors.New("outbox full")
	// ErrRejected 对端拒绝了消息（确认模式下的 404 等）
	ErrRejected = errors.New("message rejected by peer")

	// ErrConflictingDefault 默认实例已用不同配置创建
	ErrConflictingDefault = errors.New("attempting to construct different default context")
)

// DeliveryFailure 远程投递失败
type DeliveryFailure struct {
	From   pid.PID
	To     pid.PID
	Method string
	Err    error
}

// Error 实现 error 接口
func (e *DeliveryFailure) Error() string {
	return fmt.Sprintf("deliver %s to %s from %s: %v", e.Method, e.To, e.From, e.Err)
}

// Unwrap 返回底层错误
func (e *DeliveryFailure) Unwrap() error {
	return e.Err
}
