//go:build linux

package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// detectHardware reads sysfs: a non-rotational block device counts as SSD and
// any DRM card as a GPU.
func detectHardware(context.Context) (ssd, gpu bool) {
	rotational, _ := filepath.Glob("/sys/block/*/queue/rotational")
	for _, p := range rotational {
		dev := filepath.Base(filepath.Dir(filepath.Dir(p)))
		if strings.HasPrefix(dev, "loop") || strings.HasPrefix(dev, "ram") || strings.HasPrefix(dev, "zram") {
			continue
		}
		b, err := os.ReadFile(p)
		if err == nil && strings.TrimSpace(string(b)) == "0" {
			ssd = true
			break
		}
	}
	cards, _ := filepath.Glob("/sys/class/drm/card[0-9]")
	gpu = len(cards) > 0
	return ssd, gpu
}
