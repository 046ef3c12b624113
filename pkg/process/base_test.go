package process

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwmacct/251217-go-pkg-process/pkg/pid"
)

// fakeRuntime 记录出站调用
type fakeRuntime struct {
	sends      []string
	links      []pid.PID
	terminated []pid.PID
}

func (f *fakeRuntime) SendFrom(from, to pid.PID, method string, body []byte) error {
	f.sends = append(f.sends, from.String()+"->"+to.String()+":"+method+":"+string(body))
	return nil
}

func (f *fakeRuntime) Link(p, to pid.PID) error {
	f.links = append(f.links, to)
	return nil
}

func (f *fakeRuntime) Terminate(p pid.PID) {
	f.terminated = append(f.terminated, p)
}

func TestBaseBindOnce(t *testing.T) {
	b := New("derp")
	self := pid.New("derp", "127.0.0.1", 1)
	rt := &fakeRuntime{}

	assert.True(t, b.PID().IsZero())
	require.NoError(t, b.Bind(rt, self))
	assert.Equal(t, self, b.PID())

	err := b.Bind(rt, self)
	assert.ErrorIs(t, err, ErrAlreadyBound)
}

func TestBaseCapabilityTable(t *testing.T) {
	b := New("derp")
	var got []string

	require.NoError(t, b.Install("ping", func(from pid.PID, body []byte) error {
		got = append(got, from.ID+":"+string(body))
		return nil
	}))
	require.NoError(t, b.Install("fail", func(pid.PID, []byte) error {
		return errors.New("boom")
	}))
	require.NoError(t, b.Route("status", func(*http.Request) (*Response, error) {
		return Text(http.StatusOK, "ok"), nil
	}))

	assert.Equal(t, []string{"fail", "ping"}, b.MessageNames())
	assert.Equal(t, []string{"/status"}, b.RoutePaths())

	require.NoError(t, b.HandleMessage("ping", pid.New("herp", "h", 1), []byte("42")))
	assert.Equal(t, []string{"herp:42"}, got)

	assert.EqualError(t, b.HandleMessage("fail", pid.PID{}, nil), "boom")
	assert.ErrorIs(t, b.HandleMessage("nope", pid.PID{}, nil), ErrUnknownMessage)

	resp, err := b.HandleHTTP("/status", httptest.NewRequest("GET", "/derp/status", nil))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.Body))

	_, err = b.HandleHTTP("/missing", httptest.NewRequest("GET", "/derp/missing", nil))
	assert.ErrorIs(t, err, ErrUnknownRoute)
}

func TestBaseFrozenAfterBind(t *testing.T) {
	b := New("derp")
	require.NoError(t, b.Bind(&fakeRuntime{}, pid.New("derp", "h", 1)))

	assert.ErrorIs(t, b.Install("late", func(pid.PID, []byte) error { return nil }), ErrAlreadyBound)
	assert.ErrorIs(t, b.Route("/late", nil), ErrAlreadyBound)
	assert.Empty(t, b.MessageNames())
}

func TestBaseInvalidNames(t *testing.T) {
	b := New("")
	assert.Error(t, b.Install("", nil))
	assert.Error(t, b.Install("a/b", nil))
	assert.Error(t, b.Route("/", nil))
	assert.Equal(t, "", b.Name())
}

func TestBaseOutbound(t *testing.T) {
	b := New("derp")
	to := pid.New("herp", "10.0.0.1", 2)

	assert.ErrorIs(t, b.Send(to, "ping", nil), ErrNotBound)
	assert.ErrorIs(t, b.Link(to), ErrNotBound)
	assert.ErrorIs(t, b.Terminate(), ErrNotBound)

	rt := &fakeRuntime{}
	self := pid.New("derp", "127.0.0.1", 1)
	require.NoError(t, b.Bind(rt, self))

	require.NoError(t, b.Send(to, "ping", []byte("x")))
	require.NoError(t, b.Link(to))
	require.NoError(t, b.Terminate())

	assert.Equal(t, []string{"derp@127.0.0.1:1->herp@10.0.0.1:2:ping:x"}, rt.sends)
	assert.Equal(t, []pid.PID{to}, rt.links)
	assert.Equal(t, []pid.PID{self}, rt.terminated)
}

func TestChunks(t *testing.T) {
	resp := Chunks(slices.Values([][]byte{[]byte("a"), []byte("b")}))
	var parts []string
	for chunk := range resp.Stream {
		parts = append(parts, string(chunk))
	}
	assert.Equal(t, []string{"a", "b"}, parts)

	text := Text(201, "hi")
	assert.Equal(t, 201, text.Status)
	assert.Equal(t, "text/plain; charset=utf-8", text.Header.Get("Content-Type"))
}
