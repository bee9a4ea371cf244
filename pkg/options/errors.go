// 文件: pkg/options/errors.go
package options

import (
	"errors"
	"fmt"
)

// 哨兵错误，配合 errors.Is 判断错误类别
var (
	ErrMissingField     = errors.New("missing field")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInvalidRange     = errors.New("invalid range")
)

// MissingFieldError 输入记录中缺少必填字段
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %q", e.Field)
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

// InvalidParameterError 字段存在但违反取值约束 (如 T<=0, sigma<=0)
type InvalidParameterError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *InvalidParameterError) Unwrap() error { return ErrInvalidParameter }

// InvalidRangeError 情景轴为空或不合法
type InvalidRangeError struct {
	Axis   string
	Reason string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range %s: %s", e.Axis, e.Reason)
}

func (e *InvalidRangeError) Unwrap() error { return ErrInvalidRange }
