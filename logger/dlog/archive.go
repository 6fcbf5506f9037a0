package dlog

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Archiver moves the previous day's log files into a dated
// subdirectory and truncates the live ones.
type Archiver struct {
	Dir string
}

func (a *Archiver) Process() {
	yesterday := time.Now().AddDate(0, 0, -1).Format("2006-01-02")

	archiveDir := filepath.Join(a.Dir, yesterday)
	tmp := archiveDir
	counter := 1
	err := os.Mkdir(archiveDir, 0755)
	for os.IsExist(err) {
		archiveDir = tmp + "-" + strconv.Itoa(counter)
		counter++
		err = os.Mkdir(archiveDir, 0755)
	}
	if err != nil {
		Error("failed to create archive directory", "dir", archiveDir, "err", err)
		return
	}

	entries, err := os.ReadDir(a.Dir)
	if err != nil {
		Error("failed to read log directory", "dir", a.Dir, "err", err)
		return
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		live := filepath.Join(a.Dir, entry.Name())
		if err := a.archiveFile(live, filepath.Join(archiveDir, entry.Name())); err != nil {
			Error("failed to archive log", "file", entry.Name(), "err", err)
			return
		}
		if err := os.Truncate(live, 0); err != nil {
			Error("failed to truncate log", "file", entry.Name(), "err", err)
			return
		}
		Info("archived log", "file", entry.Name())
	}
}

func (a *Archiver) archiveFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE, 0600)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
