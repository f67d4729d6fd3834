package menu

import (
	"bytes"
	_ "embed"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"

	"github.com/example/kvc-indicator/internal/config"
	"github.com/example/kvc-indicator/internal/logging"
	"github.com/example/kvc-indicator/internal/presentation"
)

var (
	//go:embed assets/started.png
	defaultStartedIcon []byte
	//go:embed assets/stopped.png
	defaultStoppedIcon []byte
)

// IconSet holds the image data for every icon the tray can show.
type IconSet map[presentation.IconID][]byte

// LoadIcons returns the built-in icons with any configured replacements
// applied. Replacements are decoded and re-encoded as PNG.
func LoadIcons(cfg config.Icons) (IconSet, error) {
	set := IconSet{
		presentation.IconStarted: cloneIcon(defaultStartedIcon),
		presentation.IconStopped: cloneIcon(defaultStoppedIcon),
	}

	for id, path := range map[presentation.IconID]string{
		presentation.IconStarted: cfg.Started,
		presentation.IconStopped: cfg.Stopped,
	} {
		if path == "" {
			continue
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s icon: %w", id, err)
		}
		normalized, err := normalizeIcon(raw)
		if err != nil {
			return nil, fmt.Errorf("%s icon %s: %w", id, path, err)
		}
		set[id] = normalized
	}
	return set, nil
}

// Icon returns a copy of the data for id, or nil when the set has none.
func (s IconSet) Icon(id presentation.IconID) []byte {
	return cloneIcon(s[id])
}

func normalizeIcon(data []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("invalid bounds %dx%d", bounds.Dx(), bounds.Dy())
	}
	if format == "png" {
		return cloneIcon(data), nil
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		return nil, fmt.Errorf("convert to png: %w", err)
	}
	logging.Debugf("converted %dx%d tray icon from %s to png", bounds.Dx(), bounds.Dy(), format)
	return buf.Bytes(), nil
}

func cloneIcon(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp
}
