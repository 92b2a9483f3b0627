package util

import (
	"encoding/json"
	"fmt"
	"strconv"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// ProbeDuration 使用 ffprobe 读取音频时长（秒）
func ProbeDuration(filePath string) (float64, error) {
	out, err := ffmpeg.Probe(filePath)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", filePath, err)
	}

	var result struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		return 0, fmt.Errorf("parse probe output: %w", err)
	}
	d, err := strconv.ParseFloat(result.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", result.Format.Duration, err)
	}
	return Round2(d), nil
}
