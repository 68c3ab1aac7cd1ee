package services

import (
	"github.com/irportal/anchorsign/internal/anchors"
	"github.com/irportal/anchorsign/internal/compositor"
	"github.com/irportal/anchorsign/internal/server/config"
	"github.com/irportal/anchorsign/internal/watermark"
)

// Engine bundles the document processing components shared by the services.
// Pool bounds signature compositing and watermarking together.
type Engine struct {
	Anchors    *anchors.Cache
	Compositor *compositor.Compositor
	Stamper    *watermark.Stamper
	Pool       *compositor.Pool
}

// NewEngine builds an Engine from server configuration.
func NewEngine(cfg *config.Config) *Engine {
	wm := watermark.DefaultOptions()
	wm.Angle = cfg.WatermarkAngle
	wm.Opacity = cfg.WatermarkOpacity
	wm.FontSize = cfg.WatermarkFontSize
	wm.SpacingX = cfg.WatermarkSpacingX
	wm.SpacingY = cfg.WatermarkSpacingY

	return &Engine{
		Anchors: anchors.NewCache(cfg.AnchorCacheSize),
		Compositor: compositor.New(compositor.Options{
			MaxWidth:  cfg.SignatureMaxWidth,
			MaxHeight: cfg.SignatureMaxHeight,
			MaxPixels: cfg.SignatureMaxPixels,
		}),
		Stamper: watermark.New(wm),
		Pool:    compositor.NewPool(cfg.CompositeWorkers),
	}
}
