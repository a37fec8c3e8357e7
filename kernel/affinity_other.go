//go:build !linux

package kernel

import "errors"

func pinThread(cpu int) error {
	return errors.New("kernel: thread affinity is only supported on linux")
}
