package bundle

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// Finalize replaces the indirect document with the bundled candidate.
// Both the backup archive and the candidate must already exist; either
// missing is a hard stop with no further mutation.
//
// The steps run strictly in order and each is self-checking, so a halted
// attempt is repaired by re-invoking the whole operation: already-removed
// parts are skipped, and the permission probe sits between part removal
// and the index swap so a retry after a chmod still converges.
func (o *Operation) Finalize(ctx context.Context, backupPath, bundledPath string) {
	if !exists(backupPath) {
		o.addProblem(KindPrecondition, backupPath, "Backup ZIP not found: %s", backupPath)
		return
	}
	if !exists(bundledPath) {
		o.addProblem(KindPrecondition, bundledPath, "Bundled file not found: %s", bundledPath)
		return
	}

	parts := o.PartFiles(ctx)

	atime, mtime, err := fileTimes(o.fullPath)
	if err != nil {
		o.addProblem(KindStep, o.fullPath, "Error during finalization: %v", err)
		return
	}
	o.logger.Debug("bundle: preserving timestamps", "atime", atime, "mtime", mtime)

	for _, part := range parts {
		partPath := filepath.Join(o.dir, part)
		if !exists(partPath) {
			continue
		}
		if err := os.Remove(partPath); err != nil {
			o.addProblem(KindStep, partPath, "Error during finalization: %v", err)
			return
		}
		o.logger.Debug("bundle: removed component", "path", partPath)
	}

	if err := unix.Access(o.dir, unix.W_OK); err != nil {
		o.addProblem(KindStep, o.dir,
			"No write permission in directory: %s\nTry: sudo chmod g+w %s", o.dir, o.dir)
		return
	}

	if !o.moveFile(bundledPath, o.fullPath) {
		return
	}

	// Metadata writes right after a large data write are unreliable on
	// some network mounts; settle before restoring timestamps.
	unix.Sync()
	o.logger.Info("bundle: settling before timestamp restore", "delay", o.cfg.FinalizeDelay)
	time.Sleep(o.cfg.FinalizeDelay)

	if err := os.Chtimes(o.fullPath, atime, mtime); err != nil {
		o.addProblem(KindStep, o.fullPath, "Error during finalization: %v", err)
		return
	}
	o.logger.Debug("bundle: restored timestamps", "path", o.fullPath)

	o.Doc.Bundled = true
}

// moveFile moves src onto dst with copy-then-delete. The two paths may be
// on different mounts in deployment, so a single rename is not an option;
// a failed copy leaves dst untouched, and a failed post-copy delete leaves
// a harmless duplicate.
func (o *Operation) moveFile(src, dst string) bool {
	if err := copyFile(src, dst); err != nil {
		switch {
		case errors.Is(err, fs.ErrPermission):
			o.addProblem(KindStep, dst, "Permission error: %v", err)
		case errors.Is(err, fs.ErrNotExist):
			o.addProblem(KindStep, src, "File not found: %s", src)
		default:
			o.addProblem(KindStep, dst, "Move failed: %v", err)
		}
		return false
	}
	o.logger.Debug("bundle: copied", "src", src, "dst", dst)

	if err := os.Remove(src); err != nil {
		o.addProblem(KindStep, src, "Move failed: %v", err)
		return false
	}
	o.logger.Debug("bundle: removed source", "src", src)
	return true
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := out.ReadFrom(in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// fileTimes returns the access and modification times of path.
func fileTimes(path string) (atime, mtime time.Time, err error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return time.Time{}, time.Time{}, &fs.PathError{Op: "stat", Path: path, Err: err}
	}
	atime = time.Unix(st.Atim.Sec, st.Atim.Nsec)
	mtime = time.Unix(st.Mtim.Sec, st.Mtim.Nsec)
	return atime, mtime, nil
}
