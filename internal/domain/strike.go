package domain

import "fmt"

// CalibrationBounds 是源图片完整范围对应的地理矩形（单位：度）。
//
// 约束：North > South 且 East > West；启动时由配置给出，之后只读。
type CalibrationBounds struct {
	North float64 `json:"north" yaml:"north"`
	South float64 `json:"south" yaml:"south"`
	East  float64 `json:"east" yaml:"east"`
	West  float64 `json:"west" yaml:"west"`
}

func (b CalibrationBounds) Validate() error {
	if !(b.North > b.South) {
		return fmt.Errorf("north 必须大于 south：north=%v south=%v", b.North, b.South)
	}
	if !(b.East > b.West) {
		return fmt.Errorf("east 必须大于 west：east=%v west=%v", b.East, b.West)
	}
	if b.North > 90 || b.South < -90 {
		return fmt.Errorf("纬度超出 [-90, 90]：north=%v south=%v", b.North, b.South)
	}
	if b.East > 180 || b.West < -180 {
		return fmt.Errorf("经度超出 [-180, 180]：east=%v west=%v", b.East, b.West)
	}
	return nil
}

// Contains 判断点是否落在矩形内（四条边都包含）。
func (b CalibrationBounds) Contains(lat, lng float64) bool {
	return lat >= b.South && lat <= b.North && lng >= b.West && lng <= b.East
}

// PixelFrame 是源图片的像素尺寸。
type PixelFrame struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

func (f PixelFrame) Validate() error {
	if !(f.Width > 0) || !(f.Height > 0) {
		return fmt.Errorf("像素尺寸必须为正数：%vx%v", f.Width, f.Height)
	}
	return nil
}

// RawMarker 是从源页面直接读出的标记（像素坐标 + 年龄桶），只在单次 cycle 内存在。
type RawMarker struct {
	PixelX    float64
	PixelY    float64
	AgeBucket int
}

// GeoStrike 是对外输出的最小单元。
//
// JSON 形态固定为 {lat, lng, age}，age 单位为分钟；静态地图客户端直接消费该结构。
type GeoStrike struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	AgeMinutes int     `json:"age"`
}

// TimeSlug 形如 20240301-1205z（UTC，分钟向下取整到 5 的倍数）。
type TimeSlug string
