package geoinfer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/wgdzlh/geoinfer/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// 对整幅影像执行切片推理并拼接为标签栅格
type Inference struct {
	accessor   Accessor
	model      Model
	cfg        Config
	crs        *CrsToolbox
	vectorizer Vectorizer
	logger     *zap.Logger
	logTag     string
}

type Option func(*Inference)

// ROI坐标系与影像不同时用于转换
func WithCrsToolbox(crs *CrsToolbox) Option {
	return func(in *Inference) {
		in.crs = crs
	}
}

// 标签栅格写出后执行矢量化
func WithVectorizer(v Vectorizer) Option {
	return func(in *Inference) {
		in.vectorizer = v
	}
}

type Result struct {
	RunID    string
	MaskPath string
	Tiles    int
	Batches  int
	Elapsed  time.Duration
}

type loadedTile struct {
	tile Tile
	data *Array
}

func NewInference(accessor Accessor, model Model, cfg Config, logger *zap.Logger, opts ...Option) (in *Inference, err error) {
	if err = cfg.Validate(); err != nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	in = &Inference{
		accessor: accessor,
		model:    model,
		cfg:      cfg,
		logger:   logger,
		logTag:   "Inference:",
	}
	for _, opt := range opts {
		opt(in)
	}
	return
}

func (in *Inference) Run(ctx context.Context, imagePath string) (res *Result, err error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := in.logger.With(zap.String("run", runID))
	logger.Info(in.logTag+"start inference", zap.String("image", imagePath),
		zap.Int("patch", in.cfg.PatchSize), zap.Int("stride", in.cfg.Stride), zap.Int("batch", in.cfg.BatchSize))

	fp, err := in.accessor.Open(imagePath)
	if err != nil {
		return
	}
	index := NewRtreeIndex(logger)
	if err = index.Insert(fp); err != nil {
		return
	}
	roi := in.cfg.ROI
	if roi != nil && in.cfg.ROISrid != 0 {
		if in.crs == nil {
			err = configErr("roi_srid", "roi srid %d set without a crs toolbox", in.cfg.ROISrid)
			return
		}
		var r BoundingBox
		if r, err = in.crs.ReprojectRoi(*roi, in.cfg.ROISrid, fp); err != nil {
			return
		}
		roi = &r
	}
	sampler, err := NewSampler(index, SamplerOptions{
		PatchSize: in.cfg.PatchSize,
		Stride:    in.cfg.Stride,
		ROI:       roi,
	}, logger)
	if err != nil {
		return
	}
	if sampler.Len() == 0 {
		err = ErrEmptyIndex
		return
	}
	height, width := sampler.Dims()
	ch, cw := height+in.cfg.PatchSize, width+in.cfg.PatchSize
	if int64(ch)*int64(cw) > in.cfg.MaxCanvasPixels {
		err = configErr("max_canvas_pixels", "canvas %dx%d exceeds budget of %d pixels", cw, ch, in.cfg.MaxCanvasPixels)
		return
	}
	if err = utils.EnsureDir(in.cfg.WorkDir); err != nil {
		return
	}
	canvas, err := NewCanvas(in.accessor, in.model.Classes(), ch, cw, logger)
	if err != nil {
		return
	}
	batches, err := in.dispatch(ctx, sampler, canvas, logger)
	if err != nil {
		logger.Error(in.logTag+"inference aborted", zap.Error(err))
		return
	}
	maskPath := filepath.Join(in.cfg.WorkDir, maskName(imagePath))
	if _, err = canvas.Finalize(fp.Metadata(), maskPath); err != nil {
		return
	}
	if in.vectorizer != nil {
		if err = in.vectorizer.Vectorize(ctx, maskPath); err != nil {
			logger.Error(in.logTag+"vectorize mask failed", zap.String("mask", maskPath), zap.Error(err))
			return
		}
	}
	elapsed := time.Since(start)
	res = &Result{
		RunID:    runID,
		MaskPath: maskPath,
		Tiles:    sampler.Len(),
		Batches:  batches,
		Elapsed:  elapsed,
	}
	logger.Info(in.logTag+fmt.Sprintf("extraction completed in %.0fm %.0fs", elapsed.Truncate(time.Minute).Minutes(), (elapsed%time.Minute).Seconds()),
		zap.String("mask", maskPath), zap.Int("tiles", res.Tiles), zap.Int("batches", batches))
	return
}

// 读切片可并发，模型推理与拼接由单个消费者完成
// 消费者按Seq顺序放行（乱序结果暂存），保证每次运行的累加顺序一致
func (in *Inference) dispatch(ctx context.Context, sampler *Sampler, canvas *Canvas, logger *zap.Logger) (batches int, err error) {
	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan Tile, in.cfg.Workers*2)
	loaded := make(chan loadedTile, in.cfg.Workers*2)
	// 在途切片（已派发、未拼接）的配额，拼接后归还；前序切片读取阻塞时不再继续读后续切片
	slots := make(chan struct{}, in.inflightLimit())

	g.Go(func() error {
		defer close(jobs)
		for t := range sampler.All() {
			select {
			case slots <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			select {
			case jobs <- t:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var readers sync.WaitGroup
	for i := 0; i < in.cfg.Workers; i++ {
		readers.Add(1)
		g.Go(func() error {
			defer readers.Done()
			for t := range jobs {
				arr, err := in.readTile(gctx, t)
				if err != nil {
					return err
				}
				select {
				case loaded <- loadedTile{tile: t, data: arr}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		readers.Wait()
		close(loaded)
		return nil
	})

	g.Go(func() (e error) {
		batches, e = in.consume(gctx, loaded, slots, canvas, sampler.Len(), logger)
		return
	})
	err = g.Wait()
	return
}

// 同时驻留内存的切片上限：两倍读取并发数，另加一个待推理批次
func (in *Inference) inflightLimit() int {
	return in.cfg.Workers*2 + in.cfg.BatchSize
}

func (in *Inference) readTile(ctx context.Context, t Tile) (arr *Array, err error) {
	arr, err = in.accessor.ReadWindow(ctx, t.AssetID, t.X, t.Y, t.Width, t.Height)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
			return
		}
		// 保证读错误总是带着切片坐标
		var re *AssetReadError
		if !errors.As(err, &re) {
			err = &AssetReadError{Asset: t.AssetID, X: t.X, Y: t.Y, W: t.Width, H: t.Height, Err: err}
		}
		return
	}
	arr = PadArray(arr, in.cfg.PatchSize)
	return
}

func (in *Inference) consume(ctx context.Context, loaded <-chan loadedTile, slots <-chan struct{}, canvas *Canvas, total int, logger *zap.Logger) (batches int, err error) {
	var (
		pending = map[int]loadedTile{}
		batch   = make([]loadedTile, 0, in.cfg.BatchSize)
		next    = 0
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		inputs := make([]*Array, len(batch))
		for i, lt := range batch {
			inputs[i] = lt.data
		}
		outs, err := in.model.Predict(ctx, inputs)
		if err != nil {
			return &ModelExecutionError{Batch: batches, Err: err}
		}
		if len(outs) != len(batch) {
			return &ModelExecutionError{Batch: batches, Err: fmt.Errorf("model returned %d outputs for %d tiles", len(outs), len(batch))}
		}
		for i, lt := range batch {
			o := outs[i]
			if o == nil || o.Bands != canvas.Classes() || o.Height != lt.tile.Height || o.Width != lt.tile.Width {
				return &ModelExecutionError{Batch: batches, Err: fmt.Errorf("unexpected output shape for tile %d", lt.tile.Seq)}
			}
			canvas.Merge(o, lt.tile.Weight, lt.tile.X, lt.tile.Y)
			<-slots
		}
		batches++
		logger.Debug(in.logTag+"batch merged", zap.Int("batch", batches), zap.Int("done", next), zap.Int("total", total))
		batch = batch[:0]
		return nil
	}
	for lt := range loaded {
		pending[lt.tile.Seq] = lt
		for {
			nt, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			batch = append(batch, nt)
			if len(batch) == in.cfg.BatchSize {
				if err = flush(); err != nil {
					return
				}
			}
		}
	}
	if err = ctx.Err(); err != nil {
		return
	}
	err = flush()
	return
}

// <影像名>_mask.tif，地址形式的影像取其路径部分
func maskName(imagePath string) string {
	name := imagePath
	if utils.IsHttpUrl(imagePath) {
		if u, err := url.Parse(imagePath); err == nil {
			name = path.Base(u.Path)
		}
	}
	return utils.GetFilenameWithoutExt(name) + MASK_SUFFIX
}
