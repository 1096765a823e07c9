package lock

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestLocalAlwaysAcquires(t *testing.T) {
	var l Locker = Local{}
	for i := 0; i < 3; i++ {
		r, err := l.Acquire(context.Background(), "install:wanderwise-cache-v1")
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		if err := r.Unlock(context.Background()); err != nil {
			t.Fatalf("unlock: %v", err)
		}
	}
}

func TestRedisLockerReportsConnectionErrors(t *testing.T) {
	client := NewRedisClient("127.0.0.1:1", "", 0)
	defer client.Close()

	l := &RedisLocker{Client: client, TTL: time.Second, MaxWait: 100 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := l.Acquire(ctx, "install:wanderwise-cache-v1"); err == nil {
		t.Fatal("expected error from unreachable redis")
	}
}

// fakeRedis speaks enough RESP for SET NX, GET, DEL and the unlock script.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func startFakeRedis(t *testing.T) (*fakeRedis, *redis.Client) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeRedis{data: map[string]string{}}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go f.serve(conn)
		}
	}()

	client := redis.NewClient(&redis.Options{
		Addr:            ln.Addr().String(),
		Protocol:        2,
		DisableIdentity: true,
	})
	t.Cleanup(func() {
		_ = client.Close()
		_ = ln.Close()
	})
	return f, client
}

func (f *fakeRedis) serve(conn net.Conn) {
	defer conn.Close()
	br := bufio.NewReader(conn)
	for {
		args, err := readCommand(br)
		if err != nil {
			return
		}
		if _, err := io.WriteString(conn, f.exec(args)); err != nil {
			return
		}
	}
}

func (f *fakeRedis) exec(args []string) string {
	if len(args) == 0 {
		return "-ERR empty command\r\n"
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	switch strings.ToUpper(args[0]) {
	case "PING":
		return "+PONG\r\n"
	case "SET":
		nx := false
		for _, a := range args[3:] {
			if strings.EqualFold(a, "NX") {
				nx = true
			}
		}
		if _, held := f.data[args[1]]; held && nx {
			return "$-1\r\n"
		}
		f.data[args[1]] = args[2]
		return "+OK\r\n"
	case "GET":
		v, ok := f.data[args[1]]
		if !ok {
			return "$-1\r\n"
		}
		return fmt.Sprintf("$%d\r\n%s\r\n", len(v), v)
	case "DEL":
		if _, ok := f.data[args[1]]; !ok {
			return ":0\r\n"
		}
		delete(f.data, args[1])
		return ":1\r\n"
	case "EVAL":
		// EVAL script 1 key token: compare-and-delete.
		key, token := args[3], args[4]
		if f.data[key] != token {
			return ":0\r\n"
		}
		delete(f.data, key)
		return ":1\r\n"
	default:
		return "-ERR unknown command '" + args[0] + "'\r\n"
	}
}

func (f *fakeRedis) get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok
}

func (f *fakeRedis) set(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
}

func readCommand(br *bufio.Reader) ([]string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(line, "*") {
		return nil, fmt.Errorf("unexpected %q", line)
	}
	n, err := strconv.Atoi(strings.TrimSpace(line[1:]))
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		hdr, err := br.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(hdr, "$")))
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func TestRedisLockerHeldUntilUnlock(t *testing.T) {
	_, client := startFakeRedis(t)
	ctx := context.Background()
	l := &RedisLocker{Client: client, TTL: time.Minute, MaxWait: 50 * time.Millisecond, Poll: 10 * time.Millisecond}

	first, err := l.Acquire(ctx, "install:wanderwise-cache-v1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, "install:wanderwise-cache-v1"); !errors.Is(err, ErrHeld) {
		t.Fatalf("second acquire err = %v, want ErrHeld", err)
	}
	other, err := l.Acquire(ctx, "activate:wanderwise-cache-v1")
	if err != nil {
		t.Fatalf("unrelated key: %v", err)
	}
	_ = other.Unlock(ctx)

	if err := first.Unlock(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	again, err := l.Acquire(ctx, "install:wanderwise-cache-v1")
	if err != nil {
		t.Fatalf("acquire after unlock: %v", err)
	}
	_ = again.Unlock(ctx)
}

func TestRedisLockerWaitsForRelease(t *testing.T) {
	_, client := startFakeRedis(t)
	ctx := context.Background()
	l := &RedisLocker{Client: client, TTL: time.Minute, MaxWait: 5 * time.Second, Poll: 10 * time.Millisecond}

	held, err := l.Acquire(ctx, "install:wanderwise-cache-v1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = held.Unlock(context.Background())
	}()

	start := time.Now()
	next, err := l.Acquire(ctx, "install:wanderwise-cache-v1")
	if err != nil {
		t.Fatalf("waiting acquire: %v", err)
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Fatal("acquired before the holder released")
	}
	_ = next.Unlock(ctx)
}

func TestRedisLockerHonoursContext(t *testing.T) {
	_, client := startFakeRedis(t)
	l := &RedisLocker{Client: client, TTL: time.Minute, MaxWait: time.Minute, Poll: 10 * time.Millisecond}

	if _, err := l.Acquire(context.Background(), "install:wanderwise-cache-v1"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(ctx, "install:wanderwise-cache-v1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestUnlockOnlyReleasesOwnToken(t *testing.T) {
	f, client := startFakeRedis(t)
	ctx := context.Background()

	rl, ok, err := TryLock(ctx, client, "lock:install:wanderwise-cache-v1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("TryLock ok=%v err=%v", ok, err)
	}
	if v, _ := f.get("lock:install:wanderwise-cache-v1"); v != rl.token {
		t.Fatalf("stored token %q, want %q", v, rl.token)
	}

	// The lock expired and another replica took it.
	f.set("lock:install:wanderwise-cache-v1", "other-replica")
	if err := rl.Unlock(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if v, ok := f.get("lock:install:wanderwise-cache-v1"); !ok || v != "other-replica" {
		t.Fatalf("foreign lock released: %q %v", v, ok)
	}
}
