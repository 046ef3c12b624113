// Package process 定义 Actor 进程的能力契约
//
// 进程是独立寻址的计算单元，声明一组消息名称和一组 HTTP 路由路径。
// 进程不感知传输层，收到的都是已解码的调用。
//
// [Base] 提供声明式的能力表实现，具体进程嵌入 *Base 并在构造时注册处理函数：
//
//	type Pinger struct {
//	    *process.Base
//	}
//
//	func NewPinger() *Pinger {
//	    p := &Pinger{Base: process.New("pinger")}
//	    p.Install("ping", p.ping)
//	    p.Route("/status", p.status)
//	    return p
//	}
//
// 能力表在 Bind 时冻结，之后不能再注册。
package process

import (
	"errors"
	"iter"
	"net/http"

	"github.com/lwmacct/251217-go-pkg-process/pkg/pid"
)

// TerminatedMessage 终止通知消息名称
// 被链接的进程终止时，链接方收到此消息，消息体为终止进程的 PID 字符串
const TerminatedMessage = "terminated"

var (
	// ErrAlreadyBound 进程重复绑定
	ErrAlreadyBound = errors.New("process already bound")
	// ErrNotBound 进程尚未绑定到运行时
	ErrNotBound = errors.New("process not bound")
	// ErrUnknownMessage 进程未声明该消息
	ErrUnknownMessage = errors.New("unknown message")
	// ErrUnknownRoute 进程未声明该路由
	ErrUnknownRoute = errors.New("unknown route")
)

// Runtime 进程所见的运行时（反向引用）
// 由 actor.Context 实现
type Runtime interface {
	// SendFrom 以 from 为发送者投递消息
	SendFrom(from, to pid.PID, method string, body []byte) error
	// Link 记录 p 关注 to 的终止
	Link(p, to pid.PID) error
	// Terminate 终止进程
	Terminate(p pid.PID)
}

// Process 进程能力契约
type Process interface {
	// Name 请求的进程名称，为空时由运行时生成
	Name() string
	// Bind 由 Spawn 调用一次，保存运行时引用和分配的 PID
	Bind(rt Runtime, self pid.PID) error
	// PID 绑定后的 PID，绑定前为零值
	PID() pid.PID
	// HandleMessage 处理一条消息（本地或远程）
	HandleMessage(name string, from pid.PID, body []byte) error
	// HandleHTTP 处理挂载的 HTTP 路由
	HandleHTTP(path string, r *http.Request) (*Response, error)
	// MessageNames 声明的消息名称，生命周期内不变
	MessageNames() []string
	// RoutePaths 声明的路由路径（以 / 开头），生命周期内不变
	RoutePaths() []string
}

// Response HTTP 路由响应
//
// Body 立即写出；Stream 为有限且不可重放的片段序列，传输层逐个写出并刷新，
// 序列耗尽后才结束响应。两者可同时使用，Body 先于 Stream。
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	Stream iter.Seq[[]byte]
}

// Text 创建纯文本响应
func Text(status int, body string) *Response {
	h := make(http.Header)
	h.Set("Content-Type", "text/plain; charset=utf-8")
	return &Response{Status: status, Header: h, Body: []byte(body)}
}

// Chunks 创建流式响应
func Chunks(seq iter.Seq[[]byte]) *Response {
	return &Response{Status: http.StatusOK, Stream: seq}
}
