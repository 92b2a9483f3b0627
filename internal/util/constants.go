package util

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

// 题目素材上传相关常量
const (
	MimeAudio = "audio/"
	MimeImage = "image/"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var (
	AllowedAudioExtensions = []string{".mp3", ".wav", ".m4a", ".ogg", ".aac", ".webm"}
	AllowedImageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}
)
