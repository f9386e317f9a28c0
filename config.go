package geoinfer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	FILE_EXT_TIF    = ".tif"
	FILE_EXT_TIFF   = ".tiff"
	FILE_EXT_JSON   = ".json"
	FILE_EXT_SHP    = ".shp"
	MASK_SUFFIX     = "_mask.tif"
	TMP_RASTER      = "%s.%s.tmp"
	TIF_DRIVER_NAME = "GTiff"
	SHP_DRIVER_NAME = "ESRI Shapefile"
	SHAPE_ENCODING  = "UTF-8"
	ENCODING_OPTION = "ENCODING=" + SHAPE_ENCODING
	SHP_FIELD_CLASS = "class"
	SHP_FIELD_LABEL = "label"
	VSICURL_PREFIX  = "/vsicurl/"
	COMPRESS_LZW    = "LZW"
	LABEL_DATA_TYPE = "Byte"
	UNIVERSAL_SRID  = 4326
	CGCS2000_SRID   = 4490

	DefaultPatchSize       = 512
	DefaultStride          = 256
	DefaultBatchSize       = 1
	DefaultWorkers         = 4
	DefaultThreads         = 1
	DefaultMaxCanvasPixels = 1 << 31
	MaxClasses             = 256

	maxConfigFileSize = 1 << 20
)

var (
	// GTiff建立选项
	labelCreateOptions = []string{"COMPRESS=" + COMPRESS_LZW, "TILED=YES"}
)

// 推理运行配置
type Config struct {
	PatchSize       int          `json:"patch_size"`
	Stride          int          `json:"stride"`
	BatchSize       int          `json:"batch_size"`
	Workers         int          `json:"workers"`
	Threads         int          `json:"threads"`
	WorkDir         string       `json:"work_dir"`
	MaxCanvasPixels int64        `json:"max_canvas_pixels"`
	ROI             *BoundingBox `json:"roi,omitempty"`
	ROISrid         int          `json:"roi_srid,omitempty"` // ROI坐标系，0表示影像原生坐标
	LogLevel        string       `json:"log_level"`
	Vectorize       bool         `json:"vectorize"`             // 写出掩膜后转为shp
	ClassNames      []string     `json:"class_names,omitempty"` // shp中label字段取值
}

func DefaultConfig() Config {
	return Config{
		PatchSize:       DefaultPatchSize,
		Stride:          DefaultStride,
		BatchSize:       DefaultBatchSize,
		Workers:         DefaultWorkers,
		Threads:         DefaultThreads,
		WorkDir:         ".",
		MaxCanvasPixels: DefaultMaxCanvasPixels,
		LogLevel:        "info",
	}
}

// 从JSON文件读取配置，文件中缺失的字段保留默认值
func LoadConfig(path string) (cfg Config, err error) {
	cfg = DefaultConfig()
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != FILE_EXT_JSON {
		err = fmt.Errorf("config file must have %s extension, got %q", FILE_EXT_JSON, ext)
		return
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		err = fmt.Errorf("stat config file: %w", err)
		return
	}
	if info.Size() > maxConfigFileSize {
		err = fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		return
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		err = fmt.Errorf("read config file: %w", err)
		return
	}
	if err = json.Unmarshal(data, &cfg); err != nil {
		err = fmt.Errorf("parse config file: %w", err)
	}
	return
}

func (c Config) Validate() error {
	if err := validatePatch(c.PatchSize, c.Stride); err != nil {
		return err
	}
	if c.BatchSize <= 0 {
		return configErr("batch_size", "must be positive, got %d", c.BatchSize)
	}
	if c.Workers <= 0 {
		return configErr("workers", "must be positive, got %d", c.Workers)
	}
	if c.Threads <= 0 {
		return configErr("threads", "must be positive, got %d", c.Threads)
	}
	if c.MaxCanvasPixels <= 0 {
		return configErr("max_canvas_pixels", "must be positive, got %d", c.MaxCanvasPixels)
	}
	if int64(c.PatchSize)*int64(c.PatchSize) > c.MaxCanvasPixels {
		return configErr("patch_size", "patch %d exceeds canvas budget of %d pixels", c.PatchSize, c.MaxCanvasPixels)
	}
	if c.ROI != nil && !c.ROI.Valid() {
		return configErr("roi", "min must not exceed max")
	}
	if c.ROISrid < 0 {
		return configErr("roi_srid", "must not be negative, got %d", c.ROISrid)
	}
	if len(c.ClassNames) > MaxClasses {
		return configErr("class_names", "at most %d classes, got %d", MaxClasses, len(c.ClassNames))
	}
	return nil
}

// 切片尺寸须为正偶数（窗口按N/2整除分半），步长须为正
func validatePatch(patch, stride int) error {
	if patch <= 0 {
		return configErr("patch_size", "must be positive, got %d", patch)
	}
	if patch%2 != 0 {
		return configErr("patch_size", "must be even, got %d", patch)
	}
	if stride <= 0 {
		return configErr("stride", "must be positive, got %d", stride)
	}
	return nil
}
