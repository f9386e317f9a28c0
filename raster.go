package geoinfer

import (
	"context"
	"errors"
	"math"
	"net/url"
	"os"

	"github.com/wgdzlh/geoinfer/utils"

	"github.com/lukeroth/gdal"
	"go.uber.org/zap"
)

var (
	errNotRaster   = errors.New("asset is neither a tif file nor a tif url")
	errEmptyRaster = errors.New("raster has no bands")
)

// 基于GDAL的栅格读写
// 每次读窗口都单独打开数据集，不共享读取游标，可并发调用
type GdalAccessor struct {
	crs    *CrsToolbox
	logger *zap.Logger
	logTag string
}

func NewGdalAccessor(crs *CrsToolbox, logger *zap.Logger) *GdalAccessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if crs == nil {
		crs = NewCrsToolbox(logger)
	}
	gdal.AllRegister()
	return &GdalAccessor{
		crs:    crs,
		logger: logger,
		logTag: "GdalAccessor:",
	}
}

// 本地tif路径或http(s)地址，地址转为GDAL的/vsicurl/虚拟路径
func ValidateAsset(asset string) (src string, err error) {
	if utils.IsHttpUrl(asset) {
		u, e := url.Parse(asset)
		if e != nil || u.Host == "" {
			err = errNotRaster
			return
		}
		src = VSICURL_PREFIX + asset
		return
	}
	if !utils.HasExt(asset, FILE_EXT_TIF, FILE_EXT_TIFF) {
		err = errNotRaster
		return
	}
	if !utils.FileExists(asset) {
		err = os.ErrNotExist
		return
	}
	src = asset
	return
}

// 读取影像头信息，资产ID即GDAL可打开的路径
func (g *GdalAccessor) Open(path string) (fp Footprint, err error) {
	src, err := ValidateAsset(path)
	if err != nil {
		g.logger.Error(g.logTag+"invalid asset", zap.String("path", path), zap.Error(err))
		err = &AssetOpenError{Path: path, Err: err}
		return
	}
	ds, err := gdal.Open(src, gdal.ReadOnly)
	if err != nil {
		g.logger.Error(g.logTag+"open tif failed", zap.String("path", src), zap.Error(err))
		err = &AssetOpenError{Path: path, Err: err}
		return
	}
	defer ds.Close()
	bc := ds.RasterCount()
	if bc == 0 {
		err = &AssetOpenError{Path: path, Err: errEmptyRaster}
		return
	}
	w, h := ds.RasterXSize(), ds.RasterYSize()
	gt := ds.GeoTransform()
	x0, x1 := gt[0], gt[0]+float64(w)*gt[1]
	y0, y1 := gt[3], gt[3]+float64(h)*gt[5]
	proj := ds.Projection()
	fp = Footprint{
		AssetID:      src,
		MinX:         math.Min(x0, x1),
		MaxX:         math.Max(x0, x1),
		MinY:         math.Min(y0, y1),
		MaxY:         math.Max(y0, y1),
		Res:          math.Abs(gt[1]),
		Bands:        bc,
		CRS:          proj,
		SRID:         g.crs.SridOfWkt(proj),
		Width:        w,
		Height:       h,
		GeoTransform: gt,
		DataType:     ds.RasterBand(1).RasterDataType().Name(),
	}
	g.logger.Info(g.logTag+"open tif", zap.String("asset", src), zap.Int("bands", bc),
		zap.Int("width", w), zap.Int("height", h), zap.Float64("res", fp.Res),
		zap.Int("srid", fp.SRID), zap.String("dt", fp.DataType))
	return
}

// 读取像素窗口，只返回影像范围内的部分（可能小于w×h）
// 所有整数类型经float64缓冲读取，无精度损失
func (g *GdalAccessor) ReadWindow(ctx context.Context, asset string, x, y, w, h int) (arr *Array, err error) {
	readErr := func(e error) error {
		return &AssetReadError{Asset: asset, X: x, Y: y, W: w, H: h, Err: e}
	}
	ds, err := gdal.Open(asset, gdal.ReadOnly)
	if err != nil {
		g.logger.Error(g.logTag+"open tif for read failed", zap.String("asset", asset), zap.Error(err))
		err = readErr(err)
		return
	}
	defer ds.Close()
	bc := ds.RasterCount()
	x0, y0 := max(x, 0), max(y, 0)
	x1, y1 := min(x+w, ds.RasterXSize()), min(y+h, ds.RasterYSize())
	cw, ch := max(x1-x0, 0), max(y1-y0, 0)
	arr = NewArray(bc, ch, cw)
	if cw == 0 || ch == 0 {
		return
	}
	for b := 0; b < bc; b++ {
		if err = ctx.Err(); err != nil {
			arr = nil
			return
		}
		band := ds.RasterBand(b + 1)
		if err = band.IO(gdal.Read, x0, y0, cw, ch, arr.Band(b), cw, ch, 0, 0); err != nil {
			g.logger.Error(g.logTag+"read tif band failed", zap.String("asset", asset), zap.Int("band", b),
				zap.Int("x", x), zap.Int("y", y), zap.Error(err))
			arr = nil
			err = readErr(err)
			return
		}
	}
	return
}

// 写出单波段Byte标签栅格：先写临时文件，成功后改名
func (g *GdalAccessor) WriteRaster(path string, labels *LabelRaster, meta Metadata) (err error) {
	driver, err := gdal.GetDriverByName(TIF_DRIVER_NAME)
	if err != nil {
		g.logger.Error(g.logTag+"get tif driver failed", zap.Error(err))
		return
	}
	opts := labelCreateOptions
	if meta.Compress != "" && meta.Compress != COMPRESS_LZW {
		opts = []string{"COMPRESS=" + meta.Compress, "TILED=YES"}
	}
	tmp := utils.GetUniqTmpPath(path, TMP_RASTER)
	ds := driver.Create(tmp, labels.Width, labels.Height, 1, gdal.Byte, opts)
	closed := false
	defer func() {
		if !closed {
			ds.Close()
		}
		if err != nil {
			os.Remove(tmp)
		}
	}()
	if err = ds.SetGeoTransform(meta.GeoTransform); err != nil {
		g.logger.Error(g.logTag+"set geo transform failed", zap.Error(err))
		return
	}
	if meta.CRS != "" {
		if err = ds.SetProjection(meta.CRS); err != nil {
			g.logger.Error(g.logTag+"set projection failed", zap.Error(err))
			return
		}
	}
	band := ds.RasterBand(1)
	if meta.NoData != nil {
		if err = band.SetNoDataValue(*meta.NoData); err != nil {
			return
		}
	}
	if err = band.IO(gdal.Write, 0, 0, labels.Width, labels.Height, labels.Pix, labels.Width, labels.Height, 0, 0); err != nil {
		g.logger.Error(g.logTag+"write mask band failed", zap.Error(err))
		return
	}
	ds.Close()
	closed = true
	if err = os.Rename(tmp, path); err != nil {
		g.logger.Error(g.logTag+"rename mask failed", zap.String("tmp", tmp), zap.Error(err))
		return
	}
	g.logger.Info(g.logTag+"write mask", zap.String("out", path), zap.Int("width", labels.Width), zap.Int("height", labels.Height))
	return
}
