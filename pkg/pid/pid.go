// Package pid 定义进程标识符（PID）
//
// PID 由进程名称和所在运行时实例的网络端点组成，规范字符串形式为：
//
//	<id>@<ip>:<port>
//
// 同一个字符串既用作线路协议中的发送者标记，也用作 URL 路径前缀。
package pid

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrMalformed PID 字符串无法解析
var ErrMalformed = errors.New("malformed process identifier")

// PID 进程标识符
//
// 值类型，构造后不可变。三个字段全部相等时两个 PID 相等，可直接用 == 比较或作为 map 键。
type PID struct {
	// ID 进程名称，在一个运行时实例内唯一
	ID string
	// IP 运行时实例对外可达的地址
	IP string
	// Port 运行时实例监听端口
	Port int
}

// New 创建 PID
func New(id, ip string, port int) PID {
	return PID{ID: id, IP: ip, Port: port}
}

// String 返回规范字符串形式 "<id>@<ip>:<port>"
func (p PID) String() string {
	return p.ID + "@" + p.Endpoint()
}

// Endpoint 返回 "ip:port"
func (p PID) Endpoint() string {
	return net.JoinHostPort(p.IP, strconv.Itoa(p.Port))
}

// URL 返回投递 method 消息的线路端点
func (p PID) URL(method string) string {
	return "http://" + p.Endpoint() + "/" + p.ID + "/" + method
}

// IsZero 是否为零值
func (p PID) IsZero() bool {
	return p == PID{}
}

// SameEndpoint 两个 PID 是否位于同一运行时实例
func (p PID) SameEndpoint(other PID) bool {
	return p.IP == other.IP && p.Port == other.Port
}

// Parse 解析 "<id>@<ip>:<port>"
//
// 名称不能为空；主机部分不能包含 '@'；端口必须是 0-65535 的数字。
func Parse(token string) (PID, error) {
	id, endpoint, ok := strings.Cut(token, "@")
	if !ok || id == "" {
		return PID{}, fmt.Errorf("%w: %q", ErrMalformed, token)
	}

	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return PID{}, fmt.Errorf("%w: %q: %v", ErrMalformed, token, err)
	}
	if host == "" || strings.Contains(host, "@") {
		return PID{}, fmt.Errorf("%w: %q: bad host", ErrMalformed, token)
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return PID{}, fmt.Errorf("%w: %q: bad port", ErrMalformed, token)
	}

	return PID{ID: id, IP: host, Port: int(port)}, nil
}

// MustParse 同 Parse，失败时 panic，用于字面量和测试
func MustParse(token string) PID {
	p, err := Parse(token)
	if err != nil {
		panic(err)
	}
	return p
}
