package actor

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/lwmacct/251217-go-pkg-process/pkg/httpd"
	"github.com/lwmacct/251217-go-pkg-process/pkg/pid"
)

// envelope 出站消息信封
type envelope struct {
	from   pid.PID
	to     pid.PID
	method string
	body   []byte

	// 仅 Deliver 使用
	ctx    context.Context
	result chan error
}

func (e envelope) failure(err error) *DeliveryFailure {
	return &DeliveryFailure{From: e.from, To: e.to, Method: e.method, Err: err}
}

// Send 以本实例匿名 PID 为发送者投递消息（fire-and-forget）
func (c *Context) Send(to pid.PID, method string, body []byte) error {
	return c.SendFrom(c.self, to, method, body)
}

// SendFrom 投递消息
//
// 目标在本实例时直接调用其处理函数；目标不存在时记录死信并丢弃，不返回错误。
// 目标在其他实例时排入出站队列立即返回，只有无法入队时返回 *DeliveryFailure；
// 之后的网络失败交给 Config.DeliveryFailureHandler。
func (c *Context) SendFrom(from, to pid.PID, method string, body []byte) error {
	if to.SameEndpoint(c.self) {
		c.deliverLocal(from, to, method, body)
		return nil
	}
	return c.enqueue(envelope{from: from, to: to, method: method, body: body})
}

// Deliver 投递消息并等待远程结果
//
// 远程投递在 ctx 取消、超过 SendTimeout、网络失败或对端拒绝（确认模式下非 2xx）时
// 返回 *DeliveryFailure。本地投递语义与 SendFrom 相同，总是返回 nil。
func (c *Context) Deliver(ctx context.Context, from, to pid.PID, method string, body []byte) error {
	if to.SameEndpoint(c.self) {
		c.deliverLocal(from, to, method, body)
		return nil
	}

	env := envelope{
		from:   from,
		to:     to,
		method: method,
		body:   body,
		ctx:    ctx,
		result: make(chan error, 1),
	}
	if err := c.enqueue(env); err != nil {
		return err
	}

	select {
	case err := <-env.result:
		return err
	case <-ctx.Done():
		return env.failure(ctx.Err())
	}
}

// enqueue 排入全局出站队列
func (c *Context) enqueue(env envelope) error {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()

	if c.state != stateRunning {
		return env.failure(ErrNotRunning)
	}
	if !TrySend(c.outbox, env) {
		c.counters.deliveryFailures.Add(1)
		return env.failure(ErrOutboxFull)
	}
	c.counters.remoteSends.Add(1)
	return nil
}

// dispatcher 全局出站调度
// 按对端端点分发到各自的队列，同一对端的消息按入队顺序串行发送
func (c *Context) dispatcher(ctx context.Context, g *errgroup.Group) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-c.outbox:
			endpoint := env.to.Endpoint()
			queue, ok := c.peers[endpoint]
			if !ok {
				queue = make(chan envelope, c.config.OutboxSize)
				c.peers[endpoint] = queue
				g.Go(func() error {
					c.peerLoop(ctx, queue)
					return nil
				})
			}
			if !TrySend(queue, env) {
				c.finish(env, env.failure(ErrOutboxFull))
			}
		}
	}
}

// peerLoop 单个对端的发送循环
func (c *Context) peerLoop(ctx context.Context, queue chan envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-queue:
			c.finish(env, c.post(ctx, env))
		}
	}
}

// post 发出线路消息 POST http://<ip>:<port>/<id>/<method>
func (c *Context) post(ctx context.Context, env envelope) error {
	reqCtx, cancel := MergeContextsWithCancel(ctx, env.ctx)
	defer cancel()
	reqCtx, cancelTimeout := context.WithTimeout(reqCtx, c.config.SendTimeout)
	defer cancelTimeout()

	req := c.client.R().
		SetContext(reqCtx).
		SetHeader("User-Agent", httpd.UserAgent(env.from)).
		SetHeader("Content-Type", "application/octet-stream")
	// resty 拒绝 nil 请求体，空消息不设置 body
	if len(env.body) > 0 {
		req.SetBody(env.body)
	}
	resp, err := req.Post(env.to.URL(env.method))
	if err != nil {
		return env.failure(err)
	}

	code := resp.StatusCode()
	if code < http.StatusOK || code >= http.StatusMultipleChoices {
		return env.failure(fmt.Errorf("%w: status %d", ErrRejected, code))
	}

	c.logger.Debug("message sent", "message", env.method, "to", env.to.String(), "from", env.from.String(), "status", code)
	return nil
}

// finish 交付投递结果
func (c *Context) finish(env envelope, err error) {
	if err != nil {
		c.counters.deliveryFailures.Add(1)
	}

	if env.result != nil {
		env.result <- err
		return
	}
	if err == nil {
		return
	}

	failure, ok := err.(*DeliveryFailure)
	if !ok {
		failure = env.failure(err)
	}
	if IsContextError(failure.Err) && !c.IsRunning() {
		c.logger.Debug("send cancelled by stop", "message", env.method, "target", env.to.String())
		return
	}
	if c.config.DeliveryFailureHandler != nil {
		go c.config.DeliveryFailureHandler(failure)
		return
	}
	c.logger.Warn("delivery failure",
		"message", env.method, "target", env.to.String(), "sender", env.from.String(), "error", failure.Err)
}

// drain 取消所有未发出的投递，在调度 goroutine 退出后调用
func (c *Context) drain() {
	cancelled := 0
	cancel := func(env envelope) {
		cancelled++
		if env.result != nil {
			env.result <- env.failure(ErrStopped)
		}
	}

	queues := []chan envelope{c.outbox}
	for _, queue := range c.peers {
		queues = append(queues, queue)
	}
	for _, queue := range queues {
	pending:
		for {
			select {
			case env := <-queue:
				cancel(env)
			default:
				break pending
			}
		}
	}

	if cancelled > 0 {
		c.logger.Debug("cancelled pending sends", "count", cancelled)
	}
}
