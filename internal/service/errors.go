package service

import (
	"errors"

	"openelis-alert/internal/repository"
)

var (
	// ErrAlertNotFound 告警不存在
	ErrAlertNotFound = errors.New("alert not found")
	// ErrInvalidStateTransition 当前状态不允许该操作
	ErrInvalidStateTransition = errors.New("invalid alert state transition")
	// ErrInvalidArgument 参数不合法
	ErrInvalidArgument = errors.New("invalid argument")
)

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
