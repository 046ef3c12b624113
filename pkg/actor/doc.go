// Package actor 提供轻量级进程运行时
//
// 进程（Actor）是独立寻址的计算单元，通过异步消息通信，既可以在同一个运行时实例内，
// 也可以跨网络投递到其他实例。远程投递使用基于 HTTP 的线路协议：
//
//	POST http://<ip>:<port>/<id>/<message>
//	User-Agent: libprocess/<sender-pid>
//
// # 核心组件
//
// [Context] 是运行时实例，每个网络端点一个，管理进程注册表、链接关系、出站调度和传输层：
//
//	ctx, err := actor.NewContext(actor.DefaultConfig())
//	if err != nil { ... }
//	if err := ctx.Start(); err != nil { ... }
//	defer ctx.Stop()
//
//	derp := process.New("derp")
//	derp.Install("ping", func(from pid.PID, body []byte) error { ... })
//	p, err := ctx.Spawn(derp)
//
//	ctx.Send(p, "ping", []byte("42"))
//
// [pid.PID] 形如 "derp@127.0.0.1:5050"，本地和远程使用同一种寻址方式。
// [Context.SendFrom] 根据目标端点决定直接调用本地处理函数还是排入出站队列。
//
// # 投递语义
//
//   - 至多一次：本地目标不存在时记录死信并丢弃，不返回错误
//   - 同一发送者到同一目标的消息按发送顺序投递
//   - 远程投递默认 fire-and-forget，[Context.Deliver] 可等待结果
//   - 处理函数的错误和 panic 在边界处记录，不传播给发送者
//
// # 链接
//
// [Context.Link] 记录对另一个进程终止的关注。被关注的进程 [Context.Terminate] 后，
// 每个关注方收到一次 [process.TerminatedMessage] 消息，消息体为终止进程的 PID。
//
// # 生命周期
//
// 监听端口在 [NewContext] 时绑定；Start 启动服务和调度，Stop 取消未发出的投递并释放端口。
// Stop 之后不能再 Start。[Default] 提供进程级共享实例。
package actor
