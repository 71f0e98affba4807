package consts

const (
	DefaultImagesDir = "images"
	DefaultVideosDir = "videos"
	DefaultInfoFile  = "info.json"

	DefaultImageExt = ".jpg"
	DefaultVideoExt = ".avi"

	DefaultFilePerm = 0666
	DefaultDirPerm  = 0777

	// ArtifactPrefix starts the name of every stored artifact.
	ArtifactPrefix = "scan"
)
