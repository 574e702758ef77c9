package fuse

import "syscall"

// forceUnmount detaches the mount lazily so busy file handles do not block it.
func forceUnmount(mountPoint string) error {
	return syscall.Unmount(mountPoint, syscall.MNT_DETACH)
}
