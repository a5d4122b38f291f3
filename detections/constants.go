package detections

const (
	InputWidth    = 256
	InputHeight   = 256
	MaskThreshold = 0.5
	GrayChannels  = 1
	RGBChannels   = 3
)
