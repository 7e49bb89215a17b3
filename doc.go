// Package animage provides frame by frame access to animated GIF and WebP
// images through a single Reader interface.
//
// A Reader is created from the complete encoded image. It reports the
// canvas size, frame count and loop count, and decodes one frame at a time
// into a non-premultiplied RGBA buffer covering the whole canvas:
//
//	r, err := animage.NewReader(data, nil)
//	if err != nil {
//		return err
//	}
//	defer r.Close()
//	for range r.FrameCount() {
//		if err := r.DecodeNextFrame(); err != nil {
//			return err
//		}
//		show(r.FrameRGBA(), r.FrameDuration())
//	}
//
// DecodeNextFrame never runs out of frames: after the last frame it starts
// again at frame 0. The loop count is reported for the caller to honour.
//
// GIF images are decoded with github.com/NathanBaulch/gifx and WebP images
// with github.com/deepteams/webp. Neither needs cgo.
package animage
