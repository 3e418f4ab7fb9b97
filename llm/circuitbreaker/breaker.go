package circuitbreaker

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// State 熔断器状态
type State int

const (
	// StateClosed 关闭状态（正常工作）
	StateClosed State = iota
	// StateOpen 打开状态（熔断中）
	StateOpen
	// StateHalfOpen 冷却结束，等待下一次调用结果
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config 熔断器配置
type Config struct {
	// Threshold 连续失败次数阈值（触发熔断）
	Threshold int

	// Cooldown 熔断持续时间
	Cooldown time.Duration

	// OnStateChange 状态变更回调。在释放锁之后同步调用，同一熔断器的
	// 回调按变更顺序依次执行；回调内不得再记录同一熔断器的结果。
	OnStateChange func(provider string, from, to State)
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Threshold: 3,
		Cooldown:  5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	return c
}

// Snapshot is a point-in-time view of one breaker.
type Snapshot struct {
	State             string     `json:"state"`
	ConsecutiveErrors int        `json:"consecutive_errors"`
	OpenUntil         *time.Time `json:"open_until,omitempty"`
}

// Breaker tracks consecutive failures of one provider. All methods are safe
// for concurrent use; increments are never lost.
type Breaker struct {
	provider string
	config   Config
	logger   *zap.Logger
	now      func() time.Time

	mu                sync.Mutex
	state             State
	consecutiveErrors int
	openUntil         time.Time
	pending           []transition

	// notifyMu 在释放 mu 之前获取，保证回调顺序与状态变更顺序一致
	notifyMu sync.Mutex
}

type transition struct {
	from, to State
}

// NewBreaker creates a closed breaker for provider.
func NewBreaker(provider string, config Config, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		provider: provider,
		config:   config.withDefaults(),
		logger:   logger.With(zap.String("provider", provider)),
		now:      time.Now,
		state:    StateClosed,
	}
}

// IsOpen reports whether calls must be skipped. An expired cooldown moves the
// breaker to half-open and allows calls again.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.unlock()
	b.refresh()
	return b.state == StateOpen
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.unlock()
	b.refresh()
	return b.state
}

// RecordSuccess closes the breaker and clears the error count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.unlock()

	if b.state != StateClosed {
		b.logger.Info("熔断器恢复正常", zap.String("from_state", b.state.String()))
	}
	b.consecutiveErrors = 0
	b.openUntil = time.Time{}
	b.setState(StateClosed)
}

// RecordFailure counts one failure. It returns true if this failure opened the breaker.
func (b *Breaker) RecordFailure() bool {
	b.mu.Lock()
	defer b.unlock()

	b.refresh()
	b.consecutiveErrors++

	switch b.state {
	case StateClosed:
		if b.consecutiveErrors >= b.config.Threshold {
			b.open()
			return true
		}
	case StateHalfOpen:
		// 冷却后再次失败，立即重新打开
		b.open()
		return true
	}
	return false
}

// Reset clears all state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.unlock()

	from := b.state
	b.consecutiveErrors = 0
	b.openUntil = time.Time{}
	b.setState(StateClosed)
	b.logger.Info("熔断器已重置", zap.String("from_state", from.String()))
}

// ConsecutiveErrors returns the current error count.
func (b *Breaker) ConsecutiveErrors() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveErrors
}

// Snapshot returns the current state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.unlock()
	b.refresh()

	s := Snapshot{State: b.state.String(), ConsecutiveErrors: b.consecutiveErrors}
	if b.state == StateOpen {
		until := b.openUntil
		s.OpenUntil = &until
	}
	return s
}

func (b *Breaker) open() {
	b.openUntil = b.now().Add(b.config.Cooldown)
	b.logger.Warn("熔断器打开",
		zap.Int("consecutive_errors", b.consecutiveErrors),
		zap.Int("threshold", b.config.Threshold),
		zap.Time("open_until", b.openUntil),
	)
	b.setState(StateOpen)
}

// refresh 冷却期结束后进入半开状态，调用方需持有锁
func (b *Breaker) refresh() {
	if b.state == StateOpen && !b.now().Before(b.openUntil) {
		b.setState(StateHalfOpen)
		b.logger.Info("熔断器进入半开状态")
	}
}

// setState 设置状态并登记回调，调用方需持有锁
func (b *Breaker) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.config.OnStateChange != nil {
		b.pending = append(b.pending, transition{from: from, to: to})
	}
}

// unlock 释放 mu 并依次执行登记的状态变更回调
func (b *Breaker) unlock() {
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	pending := b.pending
	b.pending = nil
	b.notifyMu.Lock()
	b.mu.Unlock()
	defer b.notifyMu.Unlock()

	for _, t := range pending {
		b.config.OnStateChange(b.provider, t.from, t.to)
	}
}
