package detections

import (
	"image"
	"sync"
)

// channelProcessor writes an NRGBA image into an interleaved (HWC) float
// buffer, one goroutine per colour channel.
type channelProcessor struct {
	width, height int
	scale         float32
}

func newChannelProcessor(width, height int, scale float32) *channelProcessor {
	return &channelProcessor{
		width:  width,
		height: height,
		scale:  scale,
	}
}

func (cp *channelProcessor) processChannels(img *image.NRGBA, dst []float32) {
	var wg sync.WaitGroup
	wg.Add(RGBChannels)

	for c := 0; c < RGBChannels; c++ {
		go func(channel int) {
			defer wg.Done()
			for y := 0; y < cp.height; y++ {
				src := img.Pix[y*img.Stride:]
				for x := 0; x < cp.width; x++ {
					dst[(y*cp.width+x)*RGBChannels+channel] = float32(src[x*4+channel]) * cp.scale
				}
			}
		}(c)
	}

	wg.Wait()
}
