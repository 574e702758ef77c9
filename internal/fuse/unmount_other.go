//go:build !linux

package fuse

import "syscall"

func forceUnmount(mountPoint string) error {
	return syscall.Unmount(mountPoint, syscall.MNT_FORCE)
}
