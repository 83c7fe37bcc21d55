//go:build windows

package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/StackExchange/wmi"
)

type msftPhysicalDisk struct {
	MediaType uint16
}

type win32VideoController struct {
	Name string
}

// mediaTypeSSD is MSFT_PhysicalDisk.MediaType for solid state drives
const mediaTypeSSD = 4

// detectHardware queries WMI for solid state disks and video controllers
func detectHardware(ctx context.Context) (ssd, gpu bool) {
	var disks []msftPhysicalDisk
	if err := wmiQuery(ctx, func() error {
		return wmi.QueryNamespace("SELECT MediaType FROM MSFT_PhysicalDisk", &disks, `root\Microsoft\Windows\Storage`)
	}); err != nil {
		slog.WarnContext(ctx, "wmi physical disk query", "error", err)
	}
	for _, d := range disks {
		if d.MediaType == mediaTypeSSD {
			ssd = true
			break
		}
	}

	var controllers []win32VideoController
	if err := wmiQuery(ctx, func() error {
		return wmi.Query("SELECT Name FROM Win32_VideoController", &controllers)
	}); err != nil {
		slog.WarnContext(ctx, "wmi video controller query", "error", err)
	}
	for _, c := range controllers {
		if c.Name != "" && c.Name != "Microsoft Basic Display Adapter" {
			gpu = true
			break
		}
	}
	return ssd, gpu
}

// wmiQuery runs q with a timeout; WMI calls can hang on broken repositories
func wmiQuery(ctx context.Context, q func() error) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- q() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
