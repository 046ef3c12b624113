package actor_test

import (
	"fmt"
	"time"

	"github.com/lwmacct/251217-go-pkg-process/pkg/actor"
	"github.com/lwmacct/251217-go-pkg-process/pkg/pid"
	"github.com/lwmacct/251217-go-pkg-process/pkg/process"
)

// Example_basic 演示本地进程的创建与消息投递
func Example_basic() {
	ctx, err := actor.NewContext(actor.DefaultConfig())
	if err != nil {
		panic(err)
	}
	if err := ctx.Start(); err != nil {
		panic(err)
	}
	defer ctx.Stop()

	greeter := process.New("greeter")
	_ = greeter.Install("greet", func(from pid.PID, body []byte) error {
		fmt.Printf("Hello, %s (from %s)\n", body, from.ID)
		return nil
	})

	p, err := ctx.Spawn(greeter)
	if err != nil {
		panic(err)
	}
	fmt.Println(p.ID)

	_ = ctx.Send(p, "greet", []byte("world"))

	// Output:
	// greeter
	// Hello, world (from anonymous)
}

// Example_link 演示链接与终止通知
func Example_link() {
	ctx, err := actor.NewContext(nil)
	if err != nil {
		panic(err)
	}
	if err := ctx.Start(); err != nil {
		panic(err)
	}
	defer ctx.Stop()

	watcher := process.New("watcher")
	_ = watcher.Install(process.TerminatedMessage, func(from pid.PID, _ []byte) error {
		fmt.Printf("%s terminated\n", from.ID)
		return nil
	})
	_, _ = ctx.Spawn(watcher)

	worker, _ := ctx.Spawn(process.New("worker"))
	_ = watcher.Link(worker)

	ctx.Terminate(worker)
	ctx.Terminate(worker)

	// Output:
	// worker terminated
}

// Example_remote 演示跨实例投递
func Example_remote() {
	node1, _ := actor.NewContext(nil)
	node2, _ := actor.NewContext(nil)
	_ = node1.Start()
	_ = node2.Start()
	defer node1.Stop()
	defer node2.Stop()

	done := make(chan struct{})
	echo := process.New("echo")
	_ = echo.Install("say", func(from pid.PID, body []byte) error {
		fmt.Printf("%s from node1: %v\n", body, from.Port == node1.Port())
		close(done)
		return nil
	})
	p, _ := node2.Spawn(echo)

	_ = node1.Send(p, "say", []byte("hi"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		fmt.Println("timeout")
	}

	// Output:
	// hi from node1: true
}
