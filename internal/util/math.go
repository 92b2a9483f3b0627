package util

import "math"

// Round2 保留两位小数
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
