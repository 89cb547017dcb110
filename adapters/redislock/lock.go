package redislock

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hooks/core"
	"github.com/google/uuid"
	"github.com/redis/rueidis"
)

const (
	DefaultKey          = "go-hooks:publisher:deliver"
	DefaultTTL          = 30 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

const extendScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`

// Commander is the subset of redis commands the lock needs.
type Commander interface {
	SetNX(ctx context.Context, key string, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string, token string) error
	// Extend resets the expiry of key while token still holds it.
	Extend(ctx context.Context, key string, token string, ttl time.Duration) (bool, error)
}

type Config struct {
	Key          string
	TTL          time.Duration
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	out.Key = strings.TrimSpace(out.Key)
	if out.Key == "" {
		out.Key = DefaultKey
	}
	if out.TTL <= 0 {
		out.TTL = DefaultTTL
	}
	if out.PollInterval <= 0 {
		out.PollInterval = DefaultPollInterval
	}
	return out
}

// Locker serializes publishers running in separate processes behind one
// redis key. The holder renews the key every TTL/3; it expires after TTL if
// the holder dies.
type Locker struct {
	commander Commander
	cfg       Config
	newToken  func() string
	observer  core.Observer
}

func New(commander Commander, cfg Config, logger core.Logger) (*Locker, error) {
	if commander == nil {
		return nil, fmt.Errorf("redislock: commander is required")
	}
	return &Locker{
		commander: commander,
		cfg:       cfg.withDefaults(),
		newToken:  uuid.NewString,
		observer:  core.NewObserver("hooks.redislock", nil, logger, nil),
	}, nil
}

// NewFromClient builds a Locker over a rueidis client.
func NewFromClient(client rueidis.Client, cfg Config, logger core.Logger) (*Locker, error) {
	if client == nil {
		return nil, fmt.Errorf("redislock: redis client is required")
	}
	return New(NewRueidisCommander(client), cfg, logger)
}

// Acquire blocks until the key is held or ctx is done. It matches
// core.LockAcquirer.
func (l *Locker) Acquire(ctx context.Context) (core.ReleaseLock, error) {
	if l == nil || l.commander == nil {
		return nil, fmt.Errorf("redislock: locker is not configured")
	}
	token := l.newToken()
	for {
		ok, err := l.commander.SetNX(ctx, l.cfg.Key, token, l.cfg.TTL)
		if err != nil {
			return nil, core.WrapError(err, goerrors.CategoryInternal, "redis lock acquire failed", core.ErrorInternal, map[string]any{"key": l.cfg.Key})
		}
		if ok {
			return l.releaser(token), nil
		}
		timer := time.NewTimer(l.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *Locker) AcquireFunc() core.LockAcquirer {
	return l.Acquire
}

func (l *Locker) releaser(token string) core.ReleaseLock {
	stop := make(chan struct{})
	done := make(chan struct{})
	go l.renew(token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			ctx, cancel := context.WithTimeout(context.Background(), l.cfg.TTL)
			defer cancel()
			if err := l.commander.Release(ctx, l.cfg.Key, token); err != nil {
				l.observer.Log(ctx, "warn", "redis lock release failed", map[string]any{
					"key":   l.cfg.Key,
					"error": err.Error(),
				})
			}
		})
	}
}

// renew extends the lease until stop closes or the key is lost.
func (l *Locker) renew(token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := max(l.cfg.TTL/3, time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		ok, err := l.commander.Extend(ctx, l.cfg.Key, token, l.cfg.TTL)
		cancel()
		if err != nil {
			l.observer.Log(context.Background(), "warn", "redis lock renew failed", map[string]any{
				"key":   l.cfg.Key,
				"error": err.Error(),
			})
			continue
		}
		if !ok {
			l.observer.Log(context.Background(), "warn", "redis lock lost before release", map[string]any{"key": l.cfg.Key})
			return
		}
	}
}

type RueidisCommander struct {
	client  rueidis.Client
	release *rueidis.Lua
	extend  *rueidis.Lua
}

func NewRueidisCommander(client rueidis.Client) *RueidisCommander {
	return &RueidisCommander{
		client:  client,
		release: rueidis.NewLuaScript(releaseScript),
		extend:  rueidis.NewLuaScript(extendScript),
	}
}

func (c *RueidisCommander) SetNX(ctx context.Context, key string, token string, ttl time.Duration) (bool, error) {
	cmd := c.client.B().Set().Key(key).Value(token).Nx().PxMilliseconds(ttl.Milliseconds()).Build()
	err := c.client.Do(ctx, cmd).Error()
	if rueidis.IsRedisNil(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *RueidisCommander) Release(ctx context.Context, key string, token string) error {
	return c.release.Exec(ctx, c.client, []string{key}, []string{token}).Error()
}

func (c *RueidisCommander) Extend(ctx context.Context, key string, token string, ttl time.Duration) (bool, error) {
	extended, err := c.extend.Exec(ctx, c.client, []string{key}, []string{token, strconv.FormatInt(ttl.Milliseconds(), 10)}).AsInt64()
	if err != nil {
		return false, err
	}
	return extended == 1, nil
}

var _ Commander = (*RueidisCommander)(nil)
