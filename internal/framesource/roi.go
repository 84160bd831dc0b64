package framesource

import "image"

// MeanIntensity reduces a frame to the single scalar the pipeline consumes:
// the mean green-channel value over a roiWidth x roiHeight region centered
// in the image, in the 0-255 range. Green carries the strongest
// photoplethysmographic signal of the three channels. The region clips to
// the image bounds; an empty intersection yields 0.
func MeanIntensity(img image.Image, roiWidth, roiHeight int) float64 {
	bounds := img.Bounds()
	cx := (bounds.Min.X + bounds.Max.X) / 2
	cy := (bounds.Min.Y + bounds.Max.Y) / 2

	roi := image.Rect(
		cx-roiWidth/2, cy-roiHeight/2,
		cx-roiWidth/2+roiWidth, cy-roiHeight/2+roiHeight,
	).Intersect(bounds)

	if roi.Empty() {
		return 0
	}

	var sum, count float64
	for y := roi.Min.Y; y < roi.Max.Y; y++ {
		for x := roi.Min.X; x < roi.Max.X; x++ {
			_, g, _, _ := img.At(x, y).RGBA()
			sum += float64(g >> 8)
			count++
		}
	}
	return sum / count
}
