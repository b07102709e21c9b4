package repository

import "errors"

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrConflict 条件更新未命中（状态已被并发修改）
	ErrConflict = errors.New("record was modified concurrently")
)
