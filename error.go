package geoinfer

import (
	"errors"
	"fmt"
)

var (
	ErrAssetOpen        = errors.New("asset open err")
	ErrAssetRead        = errors.New("asset read err")
	ErrModelExecution   = errors.New("model execution err")
	ErrConfiguration    = errors.New("configuration err")
	ErrDuplicateAsset   = errors.New("asset already indexed")
	ErrCanvasFinalized  = errors.New("canvas already finalized")
	ErrEmptyIndex       = errors.New("no asset intersects the region of interest")
	ErrInvalidRoi       = errors.New("invalid region of interest")
	ErrGdalDriverCreate = errors.New("gdal driver create err")
)

// 无法打开或不是栅格的输入，在切片之前即终止
type AssetOpenError struct {
	Path string
	Err  error
}

func (e *AssetOpenError) Error() string {
	return fmt.Sprintf("open asset %q: %v", e.Path, e.Err)
}

func (e *AssetOpenError) Unwrap() []error {
	return []error{ErrAssetOpen, e.Err}
}

// 读取某个窗口失败，携带该切片的像素坐标
type AssetReadError struct {
	Asset      string
	X, Y, W, H int
	Err        error
}

func (e *AssetReadError) Error() string {
	return fmt.Sprintf("read asset %q window x=%d y=%d w=%d h=%d: %v", e.Asset, e.X, e.Y, e.W, e.H, e.Err)
}

func (e *AssetReadError) Unwrap() []error {
	return []error{ErrAssetRead, e.Err}
}

type ModelExecutionError struct {
	Batch int
	Err   error
}

func (e *ModelExecutionError) Error() string {
	return fmt.Sprintf("model batch %d: %v", e.Batch, e.Err)
}

func (e *ModelExecutionError) Unwrap() []error {
	return []error{ErrModelExecution, e.Err}
}

type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

func configErr(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
