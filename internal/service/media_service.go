package service

import (
	"context"
	"io"
	"lingo_edu_backend/internal/util"
	"lingo_edu_backend/pkg/logger"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	MediaAudio = "audio"
	MediaImage = "image"
)

// 单个素材文件上限
const maxMediaSize = 50 << 20

type MediaService struct {
	Storage *StorageService
	// Probe 读取音频时长，失败时时长记为 0
	Probe func(path string) (float64, error)
}

func NewMediaService(storage *StorageService) *MediaService {
	return &MediaService{Storage: storage, Probe: util.ProbeDuration}
}

type MediaResult struct {
	URL             string  `json:"url"`
	Kind            string  `json:"kind"`
	ObjectName      string  `json:"objectName"`
	DurationSeconds float64 `json:"durationSeconds"`
}

func mediaKind(contentType, ext string) (string, bool) {
	switch {
	case strings.HasPrefix(contentType, util.MimeAudio):
		return MediaAudio, contains(util.AllowedAudioExtensions, ext)
	case strings.HasPrefix(contentType, util.MimeImage):
		return MediaImage, contains(util.AllowedImageExtensions, ext)
	}
	return "", false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Upload 保存听力音频或题目图片，返回可写入题目的 URL
func (s *MediaService) Upload(ctx context.Context, fh *multipart.FileHeader) (*MediaResult, error) {
	if fh == nil {
		return nil, util.Validationf("file is required")
	}
	if fh.Size > maxMediaSize {
		return nil, util.Validationf("file exceeds %d MB", maxMediaSize>>20)
	}

	contentType := fh.Header.Get("Content-Type")
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	kind, ok := mediaKind(contentType, ext)
	if !ok {
		return nil, util.Validationf("unsupported media type %q (%s)", contentType, ext)
	}

	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	// 先落临时文件，探测时长后再上传
	tmp, err := os.CreateTemp("", "media-*"+ext)
	if err != nil {
		return nil, err
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	size, err := io.Copy(tmp, src)
	if err != nil {
		return nil, err
	}

	res := &MediaResult{Kind: kind}
	if kind == MediaAudio && s.Probe != nil {
		d, err := s.Probe(tmp.Name())
		if err != nil {
			logger.Log.Warn("audio probe failed", zap.String("file", fh.Filename), zap.Error(err))
		} else {
			res.DurationSeconds = d
		}
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	res.ObjectName = "online-tests/" + kind + "/" + uuid.NewString() + ext
	url, err := s.Storage.Upload(ctx, res.ObjectName, tmp, size, contentType)
	if err != nil {
		return nil, err
	}
	res.URL = url
	logger.Log.Info("media uploaded", zap.String("object", res.ObjectName), zap.Int64("size", size))
	return res, nil
}
