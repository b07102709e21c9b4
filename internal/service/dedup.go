package service

import "time"

// DefaultDedupWindow 去重窗口：最近一次活动在窗口内的同键活跃告警会被折叠
const DefaultDedupWindow = 30 * time.Minute

// DedupPolicy 去重策略
type DedupPolicy struct {
	Window time.Duration
}

// DefaultDedupPolicy 30 分钟窗口
func DefaultDedupPolicy() DedupPolicy {
	return DedupPolicy{Window: DefaultDedupWindow}
}

// Cutoff 最近活动必须晚于该时刻才折叠
func (p DedupPolicy) Cutoff(now time.Time) time.Time {
	w := p.Window
	if w <= 0 {
		w = DefaultDedupWindow
	}
	return now.Add(-w)
}
