// Package tfmodel runs a TensorFlow Lite segmentation model as a geoinfer.Model.
//
// The model must take one float32 NHWC input of shape [1, patch, patch, bands]
// and produce one float32 NHWC output of shape [1, patch, patch, classes].
package tfmodel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wgdzlh/geoinfer"

	"github.com/mattn/go-tflite"
	"go.uber.org/zap"
)

var (
	ErrModelLoad    = errors.New("tflite model load err")
	ErrTensorShape  = errors.New("tflite tensor shape err")
	ErrTensorType   = errors.New("tflite tensor type err")
	ErrAllocTensors = errors.New("tflite allocate tensors err")
	ErrInvoke       = errors.New("tflite invoke err")
)

// 解释器不可并发调用，Predict内部加锁
type Model struct {
	model   *tflite.Model
	options *tflite.InterpreterOptions
	interp  *tflite.Interpreter
	patch   int
	bands   int
	classes int
	mu      sync.Mutex
	logger  *zap.Logger
	logTag  string
}

func New(path string, threads int, logger *zap.Logger) (m *Model, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m = &Model{logger: logger, logTag: "TfliteModel:"}
	if m.model = tflite.NewModelFromFile(path); m.model == nil {
		logger.Error(m.logTag+"load model failed", zap.String("path", path))
		m = nil
		err = ErrModelLoad
		return
	}
	m.options = tflite.NewInterpreterOptions()
	m.options.SetNumThread(max(threads, 1))
	if m.interp = tflite.NewInterpreter(m.model, m.options); m.interp == nil {
		m.Close()
		m = nil
		err = ErrModelLoad
		return
	}
	if status := m.interp.AllocateTensors(); status != tflite.OK {
		m.Close()
		m = nil
		err = ErrAllocTensors
		return
	}
	in := m.interp.GetInputTensor(0)
	out := m.interp.GetOutputTensor(0)
	if in.Type() != tflite.Float32 || out.Type() != tflite.Float32 {
		m.Close()
		m = nil
		err = ErrTensorType
		return
	}
	if in.NumDims() != 4 || out.NumDims() != 4 || in.Dim(1) != in.Dim(2) ||
		out.Dim(1) != in.Dim(1) || out.Dim(2) != in.Dim(2) {
		logger.Error(m.logTag+"unsupported tensor layout", zap.Ints("input", in.Shape()), zap.Ints("output", out.Shape()))
		m.Close()
		m = nil
		err = ErrTensorShape
		return
	}
	m.patch, m.bands, m.classes = in.Dim(1), in.Dim(3), out.Dim(3)
	logger.Info(m.logTag+"model loaded", zap.String("path", path), zap.Int("patch", m.patch),
		zap.Int("bands", m.bands), zap.Int("classes", m.classes), zap.Int("threads", threads))
	return
}

func (m *Model) Classes() int {
	return m.classes
}

func (m *Model) PatchSize() int {
	return m.patch
}

func (m *Model) Bands() int {
	return m.bands
}

// 逐个切片推理：CHW转NHWC输入，NHWC输出转回CHW
func (m *Model) Predict(ctx context.Context, batch []*geoinfer.Array) (outs []*geoinfer.Array, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	outs = make([]*geoinfer.Array, len(batch))
	p := m.patch
	for i, arr := range batch {
		if err = ctx.Err(); err != nil {
			return
		}
		if arr.Bands != m.bands || arr.Height != p || arr.Width != p {
			err = fmt.Errorf("%w: tile %d is %dx%dx%d, model wants %dx%dx%d", ErrTensorShape, i,
				arr.Bands, arr.Height, arr.Width, m.bands, p, p)
			return
		}
		in := m.interp.GetInputTensor(0).Float32s()
		for b := 0; b < m.bands; b++ {
			band := arr.Band(b)
			for px, v := range band {
				in[px*m.bands+b] = float32(v)
			}
		}
		if status := m.interp.Invoke(); status != tflite.OK {
			m.logger.Error(m.logTag+"invoke failed", zap.Int("tile", i))
			err = ErrInvoke
			return
		}
		raw := m.interp.GetOutputTensor(0).Float32s()
		o := geoinfer.NewArray(m.classes, p, p)
		for k := 0; k < m.classes; k++ {
			band := o.Band(k)
			for px := range band {
				band[px] = float64(raw[px*m.classes+k])
			}
		}
		outs[i] = o
	}
	return
}

func (m *Model) Close() {
	if m.interp != nil {
		m.interp.Delete()
	}
	if m.options != nil {
		m.options.Delete()
	}
	if m.model != nil {
		m.model.Delete()
	}
}
