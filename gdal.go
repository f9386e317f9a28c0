package geoinfer

import (
	"strconv"
	"strings"
	"sync"

	"github.com/lukeroth/gdal"
	"go.uber.org/zap"
)

// 坐标系工具：缓存EPSG坐标系，识别影像SRID，并将ROI转换到影像坐标系
type CrsToolbox struct {
	refMap map[int]gdal.SpatialReference
	rLock  sync.Mutex
	logger *zap.Logger
	logTag string
}

// 由GDAL库C语言创建的内存对象，需要手动调用Destroy回收
type destroyable interface {
	Destroy()
}

func NewCrsToolbox(logger *zap.Logger) *CrsToolbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CrsToolbox{
		refMap: map[int]gdal.SpatialReference{},
		logger: logger,
		logTag: "CrsToolbox:",
	}
}

// 获取srid对应的坐标系（可复用，故无需回收）
func (g *CrsToolbox) getSridRef(srid int) (ref gdal.SpatialReference, err error) {
	g.rLock.Lock()
	defer g.rLock.Unlock()
	ref, ok := g.refMap[srid]
	if ok {
		return
	}
	ref = gdal.CreateSpatialReference("")
	if err = ref.FromEPSG(srid); err != nil {
		g.logger.Error(g.logTag+"set ref srid failed", zap.Int("srid", srid), zap.Error(err))
		ref.Destroy()
		return
	}
	// 固定为(经度,纬度)/(东,北)的传统GIS轴序，避免转换时坐标次序倒置
	ref.SetAxisMappingStrategy(gdal.OAMS_TraditionalGisOrder)
	g.refMap[srid] = ref
	return
}

// 从投影WKT中识别EPSG编号，无法识别时返回0
func (g *CrsToolbox) SridOfWkt(wkt string) (srid int) {
	if wkt == "" {
		return
	}
	sp := gdal.CreateSpatialReference(wkt)
	defer sp.Destroy()
	rawId, ok := sp.AttrValue("AUTHORITY", 1)
	if !ok {
		if strings.Contains(wkt, "CGCS_2000") || strings.Contains(wkt, "CGCS2000") {
			srid = CGCS2000_SRID
		}
		return
	}
	srid, err := strconv.Atoi(rawId)
	if err != nil {
		g.logger.Warn(g.logTag+"malformed authority code", zap.String("id", rawId))
		srid = 0
	}
	return
}

// 将roi从srid坐标系转换到影像坐标系，取转换后外包框
// srid为0或与影像一致时原样返回
func (g *CrsToolbox) ReprojectRoi(roi BoundingBox, srid int, fp Footprint) (ret BoundingBox, err error) {
	ret = roi
	if srid == 0 || srid == fp.SRID {
		return
	}
	ref, err := g.getSridRef(srid)
	if err != nil {
		return
	}
	var (
		tRef gdal.SpatialReference
		gc   []destroyable
	)
	defer func() {
		for _, v := range gc {
			v.Destroy()
		}
	}()
	if fp.SRID > 0 {
		if tRef, err = g.getSridRef(fp.SRID); err != nil {
			return
		}
	} else {
		if fp.CRS == "" {
			g.logger.Error(g.logTag+"asset has no crs to reproject roi into", zap.String("asset", fp.AssetID))
			err = ErrInvalidRoi
			return
		}
		tRef = gdal.CreateSpatialReference(fp.CRS)
		tRef.SetAxisMappingStrategy(gdal.OAMS_TraditionalGisOrder)
		gc = append(gc, tRef)
	}
	geo, err := gdal.CreateFromWKT(SpanToWkt(BoxToSpan(roi)), ref)
	if err != nil {
		g.logger.Error(g.logTag+"parse roi wkt failed", zap.Error(err))
		err = ErrInvalidRoi
		return
	}
	gc = append(gc, geo)
	if err = geo.TransformTo(tRef); err != nil {
		g.logger.Error(g.logTag+"roi transform failed", zap.Int("srid", srid), zap.Error(err))
		return
	}
	env := geo.Envelope()
	ret.MinX, ret.MaxX = env.MinX(), env.MaxX()
	ret.MinY, ret.MaxY = env.MinY(), env.MaxY()
	span := BoxToSpan(ret)
	g.logger.Info(g.logTag+"roi reprojected", zap.Int("from", srid), zap.Int("to", fp.SRID), zap.Float64s("span", span[:]))
	return
}

func (g *CrsToolbox) Close() {
	g.rLock.Lock()
	defer g.rLock.Unlock()
	for srid, ref := range g.refMap {
		ref.Destroy()
		delete(g.refMap, srid)
	}
}
