//go:build !windows && !linux

package services

import "context"

func detectHardware(context.Context) (ssd, gpu bool) {
	return false, false
}
