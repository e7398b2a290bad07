package view

import (
	"strconv"
	"strings"

	"github.com/alnah/go-mdbanner/internal/fields"
)

// px formats a length in pixels.
func px(v float64) string {
	return num(v) + "px"
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// cssURL quotes u for use inside url("...").
func cssURL(u string) string {
	u = strings.ReplaceAll(u, `\`, `\\`)
	u = strings.ReplaceAll(u, `"`, `\"`)
	u = strings.ReplaceAll(u, "\n", "")
	u = strings.ReplaceAll(u, "\r", "")
	return `url("` + u + `")`
}

func alignMargin(a fields.AlignMode) string {
	switch a {
	case fields.AlignLeft:
		return "0 auto 0 0"
	case fields.AlignRight:
		return "0 0 0 auto"
	default:
		return "0 auto"
	}
}

// bannerWidth is the only width-dependent part of the banner style.
// Without a max width the banner spans the view and no resize matters.
func bannerWidth(cfg fields.BannerConfig, viewWidth float64) string {
	if cfg.MaxWidth <= 0 {
		return "100%"
	}
	w := cfg.MaxWidth
	if viewWidth > 0 && viewWidth < w {
		w = viewWidth
	}
	return px(w)
}

type declarations struct {
	b strings.Builder
}

func (d *declarations) add(prop, val string) {
	if val == "" {
		return
	}
	if d.b.Len() > 0 {
		d.b.WriteString("; ")
	}
	d.b.WriteString(prop)
	d.b.WriteString(": ")
	d.b.WriteString(val)
}

func (d *declarations) String() string {
	return d.b.String()
}

// bannerStyle builds the complete inline style of the banner element.
// imageURL is empty in the error state.
func bannerStyle(cfg fields.BannerConfig, imageURL string, viewWidth float64) string {
	var d declarations
	d.add("height", px(cfg.Height))
	d.add("width", bannerWidth(cfg, viewWidth))
	d.add("margin", alignMargin(cfg.Alignment))
	if imageURL != "" {
		d.add("background-image", cssURL(imageURL))
		d.add("background-position", num(cfg.XPosition)+"% "+num(cfg.YPosition)+"%")
		d.add("background-size", string(cfg.Display))
		if cfg.Repeat {
			d.add("background-repeat", "repeat")
		} else {
			d.add("background-repeat", "no-repeat")
		}
	}
	d.add("border-radius", px(cfg.BorderRadius))
	mask := "linear-gradient(to bottom, black calc(100% + " + px(cfg.Fade) + "), transparent)"
	d.add("-webkit-mask-image", mask)
	d.add("mask-image", mask)
	d.add("--mdbanner-content-start", px(cfg.ContentStart))
	d.add("--mdbanner-title-color", cfg.TitleColor)
	return d.String()
}

// iconStyle builds the inline style of the icon overlay. imageURL is the
// resolved icon image, empty for emoji icons.
func iconStyle(cfg fields.BannerConfig, imageURL string) string {
	ic := cfg.Icon
	var d declarations
	d.add("font-size", px(ic.Size))
	d.add("opacity", num(ic.Opacity/100))
	d.add("color", ic.Color)
	d.add("background-color", ic.BackgroundColor)
	d.add("padding", px(ic.PaddingY)+" "+px(ic.PaddingX))
	d.add("border-radius", px(ic.BorderRadius))
	d.add("left", num(ic.XPosition)+"%")
	d.add("top", px(cfg.Height))
	d.add("transform", "translate(-50%, calc(-50% + "+px(ic.VerticalOffset)+")) rotate("+num(ic.Rotate)+"deg)")
	if imageURL != "" {
		d.add("width", px(ic.Size))
		d.add("height", px(ic.Size))
		d.add("background-image", cssURL(imageURL))
		d.add("background-size", "contain")
		d.add("background-repeat", "no-repeat")
		d.add("background-position", string(ic.ImageAlignment))
	}
	return d.String()
}
