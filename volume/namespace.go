package volume

import (
	"github.com/sfs-fs/sfs"
	"github.com/sfs-fs/sfs/errors"
	"github.com/sfs-fs/sfs/inode"
)

// maxLinks is the nlink ceiling: Link refuses an inode whose nlink has
// already reached it. SFS's on-disk i_nlink is a u16 but the top of the
// range is reserved the way ext2 reserves it.
const maxLinks = 65530

// Lookup finds name inside dir, returning its inode number. A missing
// name is reported as errors.ErrNotFound, matching the spec's "negative
// lookup" result (not a hard failure from the namespace layer's point of
// view, just not found).
func (v *Volume) Lookup(dir inode.Num, name string) (inode.Num, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	dirInode, err := v.inodes.ReadRaw(dir)
	if err != nil {
		return 0, err
	}
	if !dirInode.IsDir() {
		return 0, errors.ErrNotADirectory
	}
	_, _, ino, found, err := v.dirs.FindEntry(dirInode, name)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, errors.ErrNotFound
	}
	return inode.Num(ino), nil
}

// Mknod creates a new inode of the given mode and links it into dir under
// name. On any failure after the inode is allocated but before it's
// linked, the inode is freed and its bitmap bit released.
func (v *Volume) Mknod(dir inode.Num, name string, mode uint16, uid, gid uint16) (inode.Num, error) {
	if !v.flags.CanWrite() {
		return 0, errors.ErrReadOnly
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mknodLocked(dir, name, mode, uid, gid)
}

func (v *Volume) mknodLocked(dir inode.Num, name string, mode uint16, uid, gid uint16) (inode.Num, error) {
	switch mode & sfs.S_IFMT {
	case sfs.S_IFCHR, sfs.S_IFBLK, sfs.S_IFIFO:
		return 0, errors.ErrNotSupported
	}

	dirInode, err := v.inodes.ReadRaw(dir)
	if err != nil {
		return 0, err
	}
	if !dirInode.IsDir() {
		return 0, errors.ErrNotADirectory
	}
	if _, _, _, found, err := v.dirs.FindEntry(dirInode, name); err != nil {
		return 0, err
	} else if found {
		return 0, errors.ErrExists
	}

	now := currentTimestamp()
	newInode, err := v.inodes.NewInode(mode, uid, gid, now)
	if err != nil {
		return 0, err
	}

	isDir := mode&sfs.S_IFMT == sfs.S_IFDIR
	if isDir {
		newInode.Nlink = 2
	} else {
		newInode.Nlink = 1
	}

	unwind := func() {
		newInode.Nlink = 0
		_ = v.inodes.WriteInode(newInode)
		_ = v.inodes.FreeInode(newInode)
	}

	if err := v.dirs.AddEntry(dirInode, name, uint32(newInode.Num), uint32(v.sb.NameLen)); err != nil {
		unwind()
		return 0, err
	}
	if err := v.inodes.WriteInode(newInode); err != nil {
		unwind()
		return 0, err
	}
	dirInode.Mtime = now
	dirInode.Ctime = now
	if err := v.inodes.WriteInode(dirInode); err != nil {
		unwind()
		return 0, err
	}
	return newInode.Num, nil
}

// Mkdir creates a subdirectory named name inside dir, then bumps dir's own
// nlink for the new entry's "..".
func (v *Volume) Mkdir(dir inode.Num, name string, mode uint16, uid, gid uint16) (inode.Num, error) {
	if !v.flags.CanWrite() {
		return 0, errors.ErrReadOnly
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	newIno, err := v.mknodLocked(dir, name, mode|sfs.S_IFDIR, uid, gid)
	if err != nil {
		return 0, err
	}

	dirInode, err := v.inodes.ReadRaw(dir)
	if err != nil {
		return 0, err
	}
	dirInode.Nlink++
	if err := v.inodes.WriteInode(dirInode); err != nil {
		return 0, err
	}
	return newIno, nil
}

// Rmdir removes the empty subdirectory named name from dir.
func (v *Volume) Rmdir(dir inode.Num, name string) error {
	if !v.flags.CanWrite() {
		return errors.ErrReadOnly
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	dirInode, err := v.inodes.ReadRaw(dir)
	if err != nil {
		return err
	}
	page, offset, ino, found, err := v.dirs.FindEntry(dirInode, name)
	if err != nil {
		return err
	}
	if !found {
		return errors.ErrNotFound
	}

	target, err := v.inodes.ReadRaw(inode.Num(ino))
	if err != nil {
		return err
	}
	if !target.IsDir() {
		return errors.ErrNotADirectory
	}
	empty, err := v.dirs.IsEmpty(target)
	if err != nil {
		return err
	}
	if !empty {
		return errors.ErrNotEmpty
	}

	if err := v.dirs.DeleteEntry(dirInode, page, offset); err != nil {
		return err
	}
	now := currentTimestamp()
	target.Nlink = 0
	target.Ctime = now
	if err := v.tree.Truncate(target, 0); err != nil {
		return err
	}
	target.Size = 0
	if err := v.inodes.WriteInode(target); err != nil {
		return err
	}
	if err := v.inodes.FreeInode(target); err != nil {
		return err
	}

	dirInode.Nlink--
	dirInode.Mtime = now
	dirInode.Ctime = now
	return v.inodes.WriteInode(dirInode)
}

// Link adds another name (in dir) for an existing inode, bumping its
// nlink. Fails with ErrTooManyLinks if the inode is already at the link
// ceiling.
func (v *Volume) Link(dir inode.Num, name string, target inode.Num) error {
	if !v.flags.CanWrite() {
		return errors.ErrReadOnly
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	dirInode, err := v.inodes.ReadRaw(dir)
	if err != nil {
		return err
	}
	if !dirInode.IsDir() {
		return errors.ErrNotADirectory
	}
	targetInode, err := v.inodes.ReadRaw(target)
	if err != nil {
		return err
	}
	if targetInode.Nlink >= maxLinks {
		return errors.ErrTooManyLinks
	}
	if err := v.dirs.AddEntry(dirInode, name, uint32(target), uint32(v.sb.NameLen)); err != nil {
		return err
	}
	now := currentTimestamp()
	targetInode.Nlink++
	targetInode.Ctime = now
	return v.inodes.WriteInode(targetInode)
}

// Unlink removes name from dir and decrements the target inode's nlink.
// When nlink reaches 0 the inode is freed right away: its extents are
// truncated to empty and its inode bitmap bit is released. Open file
// handles are not tracked.
func (v *Volume) Unlink(dir inode.Num, name string) error {
	if !v.flags.CanWrite() {
		return errors.ErrReadOnly
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	dirInode, err := v.inodes.ReadRaw(dir)
	if err != nil {
		return err
	}
	page, offset, ino, found, err := v.dirs.FindEntry(dirInode, name)
	if err != nil {
		return err
	}
	if !found {
		return errors.ErrNotFound
	}
	target, err := v.inodes.ReadRaw(inode.Num(ino))
	if err != nil {
		return err
	}
	if target.IsDir() {
		return errors.ErrIsADirectory
	}

	if err := v.dirs.DeleteEntry(dirInode, page, offset); err != nil {
		return err
	}
	now := currentTimestamp()
	if target.Nlink > 0 {
		target.Nlink--
	}
	target.Ctime = now
	if target.Nlink == 0 {
		if err := v.tree.Truncate(target, 0); err != nil {
			return err
		}
		target.Size = 0
		if err := v.inodes.WriteInode(target); err != nil {
			return err
		}
		if err := v.inodes.FreeInode(target); err != nil {
			return err
		}
	} else if err := v.inodes.WriteInode(target); err != nil {
		return err
	}

	dirInode.Ctime = now
	return v.inodes.WriteInode(dirInode)
}

// maxSymlinkTarget is one block minus the trailing NUL.
const maxSymlinkTarget = 4095

// Symlink creates a symbolic link named name inside dir whose target is
// the given path, stored as the new inode's file content.
func (v *Volume) Symlink(dir inode.Num, name string, target string, uid, gid uint16) (inode.Num, error) {
	if !v.flags.CanWrite() {
		return 0, errors.ErrReadOnly
	}
	if len(target) > maxSymlinkTarget {
		return 0, errors.ErrNameTooLong.WithMessage("symlink target longer than one block")
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	newIno, err := v.mknodLocked(dir, name, sfs.S_IFLNK|0777, uid, gid)
	if err != nil {
		return 0, err
	}
	targetInode, err := v.inodes.ReadRaw(newIno)
	if err != nil {
		return 0, err
	}
	payload := append([]byte(target), 0)
	if _, err := v.pager.WriteAt(targetInode, 0, payload); err != nil {
		return 0, err
	}
	if err := v.inodes.WriteInode(targetInode); err != nil {
		return 0, err
	}
	return newIno, nil
}

// Readlink returns a symlink's target string.
func (v *Volume) Readlink(id inode.Num) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	in, err := v.inodes.ReadRaw(id)
	if err != nil {
		return "", err
	}
	if !in.IsSymlink() {
		return "", errors.ErrInvalid.WithMessage("not a symbolic link")
	}
	buf := make([]byte, in.Size)
	if _, err := v.pager.ReadAt(in, 0, buf); err != nil {
		return "", err
	}
	if len(buf) > 0 && buf[len(buf)-1] == 0 {
		buf = buf[:len(buf)-1]
	}
	return string(buf), nil
}

// DirEntry is one entry returned by ReadDir.
type DirEntry struct {
	Name  string
	Inode inode.Num
}

// ReadDir lists dir's entries starting at cookie (0 for the beginning),
// synthesizing "." and ".." first. parent is the parent directory's inode
// number (the caller resolves this; the directory store has no notion of
// its own parent). Returns the entries read plus the cookie to resume
// from, or done=true once the listing is exhausted.
func (v *Volume) ReadDir(dir, parent inode.Num, cookie uint64, max int) (entries []DirEntry, next uint64, done bool, err error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	dirInode, err := v.inodes.ReadRaw(dir)
	if err != nil {
		return nil, 0, false, err
	}
	if !dirInode.IsDir() {
		return nil, 0, false, errors.ErrNotADirectory
	}

	for len(entries) < max {
		name, ino, nextCookie, end, err := v.dirs.Readdir(dirInode, uint32(dir), uint32(parent), cookie)
		if err != nil {
			return entries, cookie, false, err
		}
		if end {
			return entries, cookie, true, nil
		}
		entries = append(entries, DirEntry{Name: name, Inode: inode.Num(ino)})
		cookie = nextCookie
	}
	return entries, cookie, false, nil
}
