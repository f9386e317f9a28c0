package geoinfer

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/lukeroth/gdal"
	"go.uber.org/zap"
)

// 标签栅格转shp：按类别值矢量化，每个连通区域一个图斑
type ShpVectorizer struct {
	// 类别名称，按类别序号索引；为空时不写label字段
	ClassNames []string
	// 是否保留类别0（背景）图斑
	KeepBackground bool
	// 简化容差（地理单位），<=0时不简化
	SimplifyTolerance float64

	logger *zap.Logger
	logTag string
}

func NewShpVectorizer(classNames []string, logger *zap.Logger) *ShpVectorizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShpVectorizer{
		ClassNames: classNames,
		logger:     logger,
		logTag:     "ShpVectorizer:",
	}
}

// <掩膜名>.shp，与掩膜同目录
func ShpPathOf(maskPath string) string {
	return strings.TrimSuffix(maskPath, filepath.Ext(maskPath)) + FILE_EXT_SHP
}

func (v *ShpVectorizer) Vectorize(ctx context.Context, maskPath string) (err error) {
	if err = ctx.Err(); err != nil {
		return
	}
	src, err := gdal.Open(maskPath, gdal.ReadOnly)
	if err != nil {
		v.logger.Error(v.logTag+"open mask failed", zap.String("mask", maskPath), zap.Error(err))
		return
	}
	defer src.Close()
	band := src.RasterBand(1)

	shp := ShpPathOf(maskPath)
	ds, layer, err := v.createShpLayer(shp, src.Projection())
	if err != nil {
		return
	}
	defer ds.Destroy() // 生成shp文件 + 释放资源

	classIdx := layer.Definition().FieldIndex(SHP_FIELD_CLASS)
	if err = band.Polygonize(band.GetMaskBand(), layer, classIdx, nil, nil, nil); err != nil {
		v.logger.Error(v.logTag+"polygonize mask failed", zap.String("mask", maskPath), zap.Error(err))
		return
	}
	if err = ctx.Err(); err != nil {
		return
	}
	kept, dropped := v.postProcess(layer, classIdx)
	v.logger.Info(v.logTag+"shp files created", zap.String("shp", shp), zap.Int("valid", kept), zap.Int("dropped", dropped))
	return
}

func (v *ShpVectorizer) createShpLayer(shp, projection string) (ds gdal.DataSource, layer gdal.Layer, err error) {
	driver := gdal.OGRDriverByName(SHP_DRIVER_NAME)
	ds, ok := driver.Create(shp, nil)
	if !ok {
		v.logger.Error(v.logTag+"create shp failed", zap.String("shp", shp))
		err = ErrGdalDriverCreate
		return
	}
	ref := gdal.CreateSpatialReference(projection)
	defer ref.Destroy()
	layer = ds.CreateLayer(strings.TrimSuffix(filepath.Base(shp), FILE_EXT_SHP), ref, gdal.GT_Polygon, []string{ENCODING_OPTION})
	classField := gdal.CreateFieldDefinition(SHP_FIELD_CLASS, gdal.FT_Integer)
	defer classField.Destroy()
	if err = layer.CreateField(classField, false); err != nil {
		ds.Destroy()
		return
	}
	if len(v.ClassNames) > 0 {
		labelField := gdal.CreateFieldDefinition(SHP_FIELD_LABEL, gdal.FT_String)
		defer labelField.Destroy()
		labelField.SetWidth(64)
		if err = layer.CreateField(labelField, false); err != nil {
			ds.Destroy()
		}
	}
	return
}

// 剔除背景图斑，写入类别名称，按需简化
func (v *ShpVectorizer) postProcess(layer gdal.Layer, classIdx int) (kept, dropped int) {
	var (
		labelIdx = layer.Definition().FieldIndex(SHP_FIELD_LABEL)
		feature  *gdal.Feature
		drops    []int64
		e        error
	)
	layer.ResetReading()
	for {
		if feature = layer.NextFeature(); feature == nil {
			break
		}
		class := feature.FieldAsInteger(classIdx)
		if class == 0 && !v.KeepBackground {
			drops = append(drops, feature.FID())
			feature.Destroy()
			continue
		}
		changed := false
		if labelIdx >= 0 && class >= 0 && class < len(v.ClassNames) {
			feature.SetFieldString(labelIdx, v.ClassNames[class])
			changed = true
		}
		if v.SimplifyTolerance > 0 {
			simp := feature.Geometry().SimplifyPreservingTopology(v.SimplifyTolerance)
			if e = feature.SetGeometryDirectly(simp); e != nil {
				v.logger.Error(v.logTag+"err in set geom of feature", zap.Error(e))
			} else {
				changed = true
			}
		}
		if changed {
			if e = layer.SetFeature(*feature); e != nil {
				v.logger.Error(v.logTag+"err in update feature of layer", zap.Int64("fid", feature.FID()), zap.Error(e))
			}
		}
		feature.Destroy()
		kept++
	}
	for _, fid := range drops {
		if e = layer.Delete(fid); e != nil {
			v.logger.Error(v.logTag+"err in delete background feature", zap.Int64("fid", fid), zap.Error(e))
			continue
		}
		dropped++
	}
	return
}
