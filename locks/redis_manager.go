package locks

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/core/log"
)

// ancestorsLua returns the directories containing p, the root included
const ancestorsLua = `
local function ancestors(p)
  local out = {}
  if p == "" then return out end
  table.insert(out, "")
  local from = 1
  while true do
    local i = string.find(p, "/", from, true)
    if not i then break end
    table.insert(out, string.sub(p, 1, i - 1))
    from = i + 1
  end
  return out
end
`

// Every script takes ARGV = prefix, token, ttl in ms, key...
// "held:<key>" stores the token of the holder of key; "below:<dir>" counts
// held keys strictly inside dir.
var (
	acquireScript = redis.NewScript(ancestorsLua + `
local prefix, token, ttl = ARGV[1], ARGV[2], tonumber(ARGV[3])
for i = 4, #ARGV do
  local p = ARGV[i]
  if redis.call("EXISTS", prefix .. "held:" .. p) == 1 then return 0 end
  if tonumber(redis.call("GET", prefix .. "below:" .. p) or "0") > 0 then return 0 end
  for _, a in ipairs(ancestors(p)) do
    if redis.call("EXISTS", prefix .. "held:" .. a) == 1 then return 0 end
  end
end
for i = 4, #ARGV do
  local p = ARGV[i]
  redis.call("SET", prefix .. "held:" .. p, token, "PX", ttl)
  for _, a in ipairs(ancestors(p)) do
    redis.call("INCR", prefix .. "below:" .. a)
    redis.call("PEXPIRE", prefix .. "below:" .. a, ttl)
  end
end
return 1
`)

	refreshScript = redis.NewScript(ancestorsLua + `
local prefix, token, ttl = ARGV[1], ARGV[2], tonumber(ARGV[3])
local owned = 1
for i = 4, #ARGV do
  local p = ARGV[i]
  if redis.call("GET", prefix .. "held:" .. p) == token then
    redis.call("PEXPIRE", prefix .. "held:" .. p, ttl)
    for _, a in ipairs(ancestors(p)) do
      redis.call("PEXPIRE", prefix .. "below:" .. a, ttl)
    end
  else
    owned = 0
  end
end
return owned
`)

	releaseScript = redis.NewScript(ancestorsLua + `
local prefix, token = ARGV[1], ARGV[2]
for i = 4, #ARGV do
  local p = ARGV[i]
  if redis.call("GET", prefix .. "held:" .. p) == token then
    redis.call("DEL", prefix .. "held:" .. p)
    for _, a in ipairs(ancestors(p)) do
      if redis.call("DECR", prefix .. "below:" .. a) <= 0 then
        redis.call("DEL", prefix .. "below:" .. a)
      end
    end
  end
end
return 1
`)
)

// RedisManager shares path locks between gateway instances through Redis.
// Locks expire after the TTL unless the holder is alive to refresh them, so a
// crashed instance blocks its paths for at most one TTL.
type RedisManager struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger

	mu     sync.Mutex
	held   map[string]*redisLock // token -> lock
	closed bool
}

type redisLock struct {
	token string
	keys  []string
	stop  chan struct{}
	done  chan struct{}
}

// NewRedisManager connects to the Redis server in cfg
func NewRedisManager(cfg config.LocksConfig, logger *zap.Logger) (*RedisManager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisManager(client, cfg.KeyPrefix, cfg.TTL, logger), nil
}

func newRedisManager(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *RedisManager {
	return &RedisManager{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
		held:   make(map[string]*redisLock),
	}
}

// TryLock implements Manager
func (m *RedisManager) TryLock(ctx context.Context, keys ...string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keys = slices.Compact(slices.Sorted(slices.Values(keys)))

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	lock := &redisLock{
		token: uuid.NewString(),
		keys:  keys,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}

	acquired, err := acquireScript.Run(ctx, m.client, nil, m.args(lock, keys)...).Int()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if acquired == 0 {
		return nil, fmt.Errorf("%w: %q", ErrLocked, keys)
	}

	go m.refresh(lock)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.release(lock)
		return nil, ErrClosed
	}
	m.held[lock.token] = lock
	m.mu.Unlock()

	m.logger.Debug("Lock acquired",
		zap.String("token", lock.token),
		zap.Int("keys", len(keys)),
		log.Path("first_key", keys[0]))

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, lock.token)
			m.mu.Unlock()
			m.release(lock)
		})
	}, nil
}

// Close releases every lock held through m and closes the client
func (m *RedisManager) Close() error {
	m.mu.Lock()
	m.closed = true
	held := m.held
	m.held = make(map[string]*redisLock)
	m.mu.Unlock()

	for _, lock := range held {
		m.release(lock)
	}
	return m.client.Close()
}

func (m *RedisManager) args(lock *redisLock, keys []string) []any {
	args := make([]any, 0, len(keys)+3)
	args = append(args, m.prefix, lock.token, m.ttl.Milliseconds())
	for _, key := range keys {
		args = append(args, key)
	}
	return args
}

// refresh extends the lock every third of the TTL until it is released
func (m *RedisManager) refresh(lock *redisLock) {
	defer close(lock.done)

	ticker := time.NewTicker(m.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-lock.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.ttl/3)
			owned, err := refreshScript.Run(ctx, m.client, nil, m.args(lock, lock.keys)...).Int()
			cancel()
			switch {
			case err != nil:
				m.logger.Warn("Failed to refresh lock", zap.String("token", lock.token), zap.Error(err))
			case owned == 0:
				m.logger.Warn("Lock expired while held", zap.String("token", lock.token))
			}
		}
	}
}

func (m *RedisManager) release(lock *redisLock) {
	close(lock.stop)
	<-lock.done

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, m.client, nil, m.args(lock, lock.keys)...).Err(); err != nil {
		m.logger.Warn("Failed to release lock; it will expire",
			zap.String("token", lock.token),
			zap.Duration("ttl", m.ttl),
			zap.Error(err))
	}
}
