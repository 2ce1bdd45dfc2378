package catalog

import (
	"errors"
	"fmt"
	"strconv"
)

// gravityNames maps user-facing positions to engine gravity values.
var gravityNames = map[string]string{
	"northwest": "NorthWest",
	"north":     "North",
	"northeast": "NorthEast",
	"west":      "West",
	"center":    "Center",
	"east":      "East",
	"southwest": "SouthWest",
	"south":     "South",
	"southeast": "SouthEast",
}

func positionEnum() []string {
	return []string{
		"northwest", "north", "northeast",
		"west", "center", "east",
		"southwest", "south", "southeast",
	}
}

func itoa(f float64) string {
	return strconv.Itoa(int(f))
}

func builtinSpecs() []*Spec {
	return []*Spec{
		{
			Kind:    "resize",
			Summary: "Resize the image to the given geometry.",
			Params: map[string]ParamSpec{
				"width":   {Type: TypeInt, Min: 1, Max: 10000},
				"height":  {Type: TypeInt, Min: 1, Max: 10000},
				"percent": {Type: TypeInt, Min: 1, Max: 500},
				"mode":    {Type: TypeEnum, Enum: []string{"fit", "force", "fill"}, Default: "fit"},
			},
			Flags: []string{"-resize"},
			Check: func(p Params) error {
				if p.Has("percent") {
					if p.Has("width") || p.Has("height") {
						return errors.New("percent cannot be combined with width or height")
					}
					return nil
				}
				if p.Has("width") && p.Has("height") {
					return nil
				}
				return errors.New("either percent or both width and height are required")
			},
			Render: func(p Params) []string {
				if p.Has("percent") {
					return []string{"-resize", itoa(p.Float("percent")) + "%"}
				}
				w, h := 0, 0
				if p.Has("width") {
					w = p.Int("width")
				}
				if p.Has("height") {
					h = p.Int("height")
				}
				geom := fmt.Sprintf("%dx%d", w, h)
				switch p.Str("mode") {
				case "force":
					geom += "!"
				case "fill":
					geom += "^"
				}
				return []string{"-resize", geom}
			},
		},
		{
			Kind:    "crop",
			Summary: "Crop a region out of the image.",
			Params: map[string]ParamSpec{
				"width":  {Type: TypeInt, Required: true, Min: 1, Max: 10000},
				"height": {Type: TypeInt, Required: true, Min: 1, Max: 10000},
				"x":      {Type: TypeInt, Min: 0, Max: 10000, Default: 0},
				"y":      {Type: TypeInt, Min: 0, Max: 10000, Default: 0},
			},
			Flags: []string{"-crop", "+repage"},
			Render: func(p Params) []string {
				geom := fmt.Sprintf("%dx%d+%d+%d", p.Int("width"), p.Int("height"), p.Int("x"), p.Int("y"))
				return []string{"-crop", geom, "+repage"}
			},
		},
		{
			Kind:    "rotate",
			Summary: "Rotate the image by an angle in degrees.",
			Params: map[string]ParamSpec{
				"angle": {Type: TypeFloat, Required: true, Min: -360, Max: 360},
			},
			Flags: []string{"-rotate"},
			Render: func(p Params) []string {
				return []string{"-rotate", strconv.FormatFloat(p.Float("angle"), 'f', -1, 64)}
			},
		},
		{
			Kind:    "flip",
			Summary: "Mirror the image vertically.",
			Params:  map[string]ParamSpec{},
			Flags:   []string{"-flip"},
			Render:  func(Params) []string { return []string{"-flip"} },
		},
		{
			Kind:    "flop",
			Summary: "Mirror the image horizontally.",
			Params:  map[string]ParamSpec{},
			Flags:   []string{"-flop"},
			Render:  func(Params) []string { return []string{"-flop"} },
		},
		{
			Kind:    "quality",
			Summary: "Set the output compression quality.",
			Params: map[string]ParamSpec{
				"value": {Type: TypeInt, Required: true, Min: 1, Max: 100},
			},
			Flags: []string{"-quality"},
			Render: func(p Params) []string {
				return []string{"-quality", itoa(p.Float("value"))}
			},
		},
		{
			Kind:    "blur",
			Summary: "Apply a gaussian blur.",
			Params: map[string]ParamSpec{
				"sigma": {Type: TypeFloat, Required: true, Min: 0.1, Max: 50},
			},
			Flags: []string{"-gaussian-blur"},
			Render: func(p Params) []string {
				return []string{"-gaussian-blur", fmt.Sprintf("0x%.1f", p.Float("sigma"))}
			},
		},
		{
			Kind:    "sharpen",
			Summary: "Sharpen the image.",
			Params: map[string]ParamSpec{
				"radius": {Type: TypeFloat, Min: 0, Max: 50, Default: 0},
				"sigma":  {Type: TypeFloat, Min: 0.1, Max: 50, Default: 1},
			},
			Flags: []string{"-sharpen"},
			Render: func(p Params) []string {
				return []string{"-sharpen", fmt.Sprintf("%gx%g", p.Float("radius"), p.Float("sigma"))}
			},
		},
		{
			Kind:    "grayscale",
			Summary: "Convert the image to grayscale.",
			Params:  map[string]ParamSpec{},
			Flags:   []string{"-colorspace"},
			Render:  func(Params) []string { return []string{"-colorspace", "Gray"} },
		},
		{
			Kind:    "sepia",
			Summary: "Apply a sepia tone.",
			Params: map[string]ParamSpec{
				"threshold": {Type: TypeFloat, Min: 0, Max: 100, Default: 80},
			},
			Flags: []string{"-sepia-tone"},
			Render: func(p Params) []string {
				return []string{"-sepia-tone", fmt.Sprintf("%g%%", p.Float("threshold"))}
			},
		},
		{
			Kind:    "modulate",
			Summary: "Adjust brightness, saturation and hue.",
			Params: map[string]ParamSpec{
				"brightness": {Type: TypeInt, Min: 0, Max: 200, Default: 100},
				"saturation": {Type: TypeInt, Min: 0, Max: 200, Default: 100},
				"hue":        {Type: TypeInt, Min: 0, Max: 200, Default: 100},
			},
			Flags: []string{"-modulate"},
			Render: func(p Params) []string {
				v := fmt.Sprintf("%d,%d,%d", p.Int("brightness"), p.Int("saturation"), p.Int("hue"))
				return []string{"-modulate", v}
			},
		},
		{
			Kind:    "brightness-contrast",
			Summary: "Adjust brightness and contrast.",
			Params: map[string]ParamSpec{
				"brightness": {Type: TypeInt, Min: -100, Max: 100, Default: 0},
				"contrast":   {Type: TypeInt, Min: -100, Max: 100, Default: 0},
			},
			Flags: []string{"-brightness-contrast"},
			Render: func(p Params) []string {
				return []string{"-brightness-contrast", fmt.Sprintf("%dx%d", p.Int("brightness"), p.Int("contrast"))}
			},
		},
		{
			Kind:    "normalize",
			Summary: "Stretch the image contrast to the full range.",
			Params:  map[string]ParamSpec{},
			Flags:   []string{"-normalize"},
			Render:  func(Params) []string { return []string{"-normalize"} },
		},
		{
			Kind:    "auto-orient",
			Summary: "Orient the image according to its EXIF data.",
			Params:  map[string]ParamSpec{},
			Flags:   []string{"-auto-orient"},
			Render:  func(Params) []string { return []string{"-auto-orient"} },
		},
		{
			Kind:    "strip",
			Summary: "Remove all metadata profiles.",
			Params:  map[string]ParamSpec{},
			Flags:   []string{"-strip"},
			Render:  func(Params) []string { return []string{"-strip"} },
		},
		{
			Kind:    "trim",
			Summary: "Trim uniform borders from the image edges.",
			Params:  map[string]ParamSpec{},
			Flags:   []string{"-trim", "+repage"},
			Render:  func(Params) []string { return []string{"-trim", "+repage"} },
		},
		{
			Kind:    "negate",
			Summary: "Invert the image colors.",
			Params:  map[string]ParamSpec{},
			Flags:   []string{"-negate"},
			Render:  func(Params) []string { return []string{"-negate"} },
		},
		{
			Kind:    "watermark",
			Summary: "Draw watermark text over the image.",
			Params: map[string]ParamSpec{
				"text":     {Type: TypeString, Required: true, MaxLen: 200},
				"position": {Type: TypeEnum, Enum: positionEnum(), Default: "southeast"},
				"fontSize": {Type: TypeInt, Min: 8, Max: 200, Default: 24},
				"opacity":  {Type: TypeFloat, Min: 0, Max: 1, Default: 0.5},
			},
			Flags: []string{"-gravity", "-pointsize", "-fill", "-annotate"},
			Render: func(p Params) []string {
				size := p.Int("fontSize")
				opacity := p.Float("opacity")
				margin := size * 2 / 5
				if margin < 10 {
					margin = 10
				}
				shadow := size / 20
				if shadow < 2 {
					shadow = 2
				}
				// Text shadow first, then the text itself, for legibility
				// on both light and dark images.
				return []string{
					"-gravity", gravityNames[p.Str("position")],
					"-pointsize", strconv.Itoa(size),
					"-fill", fmt.Sprintf("rgba(0,0,0,%.2f)", opacity),
					"-annotate", fmt.Sprintf("+%d+%d", margin+shadow, margin+shadow), p.Str("text"),
					"-fill", fmt.Sprintf("rgba(255,255,255,%.2f)", opacity),
					"-annotate", fmt.Sprintf("+%d+%d", margin, margin), p.Str("text"),
				}
			},
		},
		{
			Kind:    "transparent",
			Summary: "Make a color transparent.",
			Params: map[string]ParamSpec{
				"color": {Type: TypeEnum, Enum: []string{"white", "black", "red", "green", "blue"}, Default: "white"},
				"fuzz":  {Type: TypeInt, Min: 0, Max: 100, Default: 10},
			},
			Flags: []string{"-alpha", "-fuzz", "-transparent"},
			Render: func(p Params) []string {
				return []string{
					"-alpha", "set",
					"-fuzz", fmt.Sprintf("%d%%", p.Int("fuzz")),
					"-transparent", p.Str("color"),
				}
			},
		},
		{
			Kind:              "remove-background",
			Summary:           "Remove the image background using the inference service.",
			RequiresInference: true,
			Params: map[string]ParamSpec{
				"model":        {Type: TypeEnum, Enum: []string{"u2net", "isnet-general-use"}, Default: "u2net"},
				"alphaMatting": {Type: TypeBool, Default: false},
			},
			Flags: []string{"--task", "--model", "--alpha-matting"},
			Render: func(p Params) []string {
				argv := []string{"--task", "remove-background", "--model", p.Str("model")}
				if p.Bool("alphaMatting") {
					argv = append(argv, "--alpha-matting", "true")
				}
				return argv
			},
		},
		{
			Kind:              "upscale",
			Summary:           "Upscale the image using the inference service.",
			RequiresInference: true,
			Params: map[string]ParamSpec{
				"scale": {Type: TypeInt, OneOf: []float64{2, 4}, Default: 2},
			},
			Flags: []string{"--task", "--scale"},
			Render: func(p Params) []string {
				return []string{"--task", "upscale", "--scale", itoa(p.Float("scale"))}
			},
		},
	}
}
