// Package geo 负责像素坐标到经纬度的仿射变换。
package geo

import (
	"math"

	"github.com/John-Robertt/lgtmap/internal/domain"
)

// Transformer 把源图片像素坐标映射为经纬度。
//
// 像素原点在左上角，而纬度向北增大，所以 y 轴是反向的。
// 该类型不做取整，取整由调用方（pipeline）负责。
type Transformer struct {
	Bounds domain.CalibrationBounds
	Frame  domain.PixelFrame
}

func (t Transformer) ToLatLng(px, py float64) (lat, lng float64) {
	b := t.Bounds
	lat = b.North - (py/t.Frame.Height)*(b.North-b.South)
	lng = b.West + (px/t.Frame.Width)*(b.East-b.West)
	return lat, lng
}

// Round4 四舍五入到小数点后 4 位；对已取整的值再次调用结果不变。
func Round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}
