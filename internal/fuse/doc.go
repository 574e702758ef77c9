/*
Package fuse mounts a caching file system as a read-only POSIX directory tree using
github.com/hanwen/go-fuse/v2.

# Request Mapping

Every kernel request is answered through filesystem.CachingFileSystem, so a tree that
has not changed is served from the stat and read caches:

	lookup  name     -> StatAsync(parent/)   child listed as "name/" or "name"
	getattr dir/     -> Exists(dir/)
	getattr file     -> ReadSingle(file)     size is len(Data)
	readdir dir/     -> ReadSingle(dir/)     Children, "x/" entries are directories
	open    file     -> ReadSingle(file)     content pinned in the handle
	read    file     -> slice of the pinned content

Opening for write fails with EROFS and the mount itself carries the "ro" option.

# Errors

	errors.ErrCodeFileNotFound   ENOENT
	errors.ErrCodeNotDirectory   ENOTDIR
	errors.ErrCodePathInvalid    EINVAL
	errors.ErrCodeAccessDenied   EACCES
	errors.ErrCodeThrottled      EAGAIN
	context cancellation         EINTR
	anything else                EIO

In fail-on-miss mode an uncached path is reported as ENOENT, exactly like a path the
store does not have.

# Usage

	fsys := fuse.NewFileSystem(cfs, nil, logger)
	mm := fuse.NewMountManager(fsys, fuse.MountConfig{
		MountPoint: "/mnt/docs",
		Options:    fuse.DefaultMountOptions(),
	})
	if err := mm.Mount(ctx); err != nil {
		return err
	}
	mm.Wait()

Canceling ctx unmounts.
*/
package fuse
