//go:build linux

package source

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/joeycumines/go-syslogsafer/endpoint"
	"github.com/joeycumines/go-syslogsafer/internal/logging"
	"github.com/joeycumines/go-syslogsafer/internal/poller"
)

// breakPoller replaces the epoll instance watching m's listener with
// /dev/null, so the next wait fails with EINVAL. The fd number stays open,
// and is closed by the poller as usual.
func breakPoller(t *testing.T, m *Multiplexer) {
	t.Helper()

	target := -1
	for fd := range m.handles {
		target = fd
	}
	require.NotEqual(t, -1, target)

	entries, err := os.ReadDir(`/proc/self/fd`)
	require.NoError(t, err)

	epfd := -1
	for _, e := range entries {
		fd, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		if link, err := os.Readlink(`/proc/self/fd/` + e.Name()); err != nil || link != `anon_inode:[eventpoll]` {
			continue
		}
		info, err := os.ReadFile(`/proc/self/fdinfo/` + e.Name())
		if err != nil {
			continue
		}
		for _, line := range strings.Split(string(info), "\n") {
			if f := strings.Fields(line); len(f) >= 2 && f[0] == `tfd:` && f[1] == strconv.Itoa(target) {
				epfd = fd
			}
		}
	}
	require.NotEqual(t, -1, epfd, "epoll instance not found")

	null, err := unix.Open(`/dev/null`, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	require.NoError(t, err)
	defer unix.Close(null)
	require.NoError(t, unix.Dup3(null, epfd, unix.O_CLOEXEC))
}

func TestMultiplexer_Run_pollFailure(t *testing.T) {
	path := socketPath(t)
	var logs logging.Buffer
	r := start(t, Config{Address: path, Transport: endpoint.Datagram, PollTimeout: 10 * time.Millisecond}, new(recorder),
		WithLogger(logging.New(&logs, logiface.LevelDebug)))

	breakPoller(t, r.m)

	err := r.wait(t)
	require.ErrorIs(t, err, unix.EINVAL)
	assert.Contains(t, err.Error(), `source: poll`)

	assert.Empty(t, r.m.handles)
	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist), "socket path should be removed: %v", err)

	out := logs.String()
	assert.Contains(t, out, `source: poll failed`)
	assert.Contains(t, out, `source: disposed handle`)
	assert.Contains(t, out, `source: stopped`)
}

func TestMultiplexer_register_failure(t *testing.T) {
	var logs logging.Buffer
	m, err := New(Config{Address: socketPath(t)}, new(recorder), WithLogger(logging.New(&logs, logiface.LevelDebug)))
	require.NoError(t, err)
	p, err := poller.New(0)
	require.NoError(t, err)
	defer p.Close()
	m.poller = p

	// epoll rejects regular files
	fd, err := unix.Open(filepath.Join(t.TempDir(), `file`), unix.O_CREAT|unix.O_RDWR|unix.O_CLOEXEC, 0600)
	require.NoError(t, err)

	err = m.register(&handle{fd: fd, kind: kindStream})
	assert.ErrorIs(t, err, unix.EPERM)
	assert.Empty(t, m.handles)
	_, err = unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	assert.ErrorIs(t, err, unix.EBADF, "fd should be closed")
	assert.Contains(t, logs.String(), `source: disposed handle`)

	// still usable
	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC))
	defer unix.Close(fds[1])
	h := &handle{buf: make([]byte, 8), fd: fds[0], kind: kindStream}
	require.NoError(t, m.register(h))
	assert.Len(t, m.handles, 1)
	m.dispose(h)
	assert.Empty(t, m.handles)
}

func TestMultiplexer_accept_fdExhaustion(t *testing.T) {
	path := socketPath(t)
	out := new(recorder)
	var logs logging.Buffer
	start(t, Config{Address: path, Transport: endpoint.Stream}, out,
		WithLogger(logging.New(&logs, logiface.LevelDebug)),
		WithLogRate(map[time.Duration]int{time.Hour: 3}))

	client, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	defer unix.Close(client)

	// the lowest free fd, which accept would be given
	next, err := unix.Dup(client)
	require.NoError(t, err)
	require.NoError(t, unix.Close(next))

	var orig unix.Rlimit
	require.NoError(t, unix.Getrlimit(unix.RLIMIT_NOFILE, &orig))
	limited := orig
	limited.Cur = uint64(next)
	require.NoError(t, unix.Setrlimit(unix.RLIMIT_NOFILE, &limited))
	var restored bool
	restore := func() {
		if !restored {
			restored = true
			require.NoError(t, unix.Setrlimit(unix.RLIMIT_NOFILE, &orig))
		}
	}
	defer restore()

	require.NoError(t, unix.Connect(client, &unix.SockaddrUnix{Name: path}))
	time.Sleep(300 * time.Millisecond)
	restore()

	warnings := strings.Count(logs.String(), `source: accept failed`)
	assert.GreaterOrEqual(t, warnings, 1)
	assert.LessOrEqual(t, warnings, 3)

	// the pending connection is accepted once fds are available
	_, err = unix.Write(client, []byte(`<13>hello`))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return strings.Join(out.strings(), ``) == `<13>hello` }, 5*time.Second, time.Millisecond)
	assert.Contains(t, logs.String(), `source: accepted connection`)
}
