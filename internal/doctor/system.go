package doctor

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/weftlabs/weft/internal/profiling"
)

const (
	// minDiskBytes is the free space floor for indexing; the vector
	// files and lexical sidecar grow with the project.
	minDiskBytes = 100 * 1024 * 1024

	// minFileDescriptors covers the sidecar's segment files plus the
	// SQLite and HNSW handles with room for the project scan.
	minFileDescriptors = 1024

	// minMemoryBytes is the floor below which embedding batches start
	// to thrash.
	minMemoryBytes = 512 * 1024 * 1024
)

func checkDiskSpace(root string) Result {
	r := Result{Name: "disk_space", Required: true}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(root, &stat); err != nil {
		r.Status = Fail
		r.Message = fmt.Sprintf("cannot stat filesystem: %v", err)
		return r
	}

	free := int64(stat.Bavail) * int64(stat.Bsize)
	r.Message = fmt.Sprintf("%s free (minimum %s)",
		profiling.FormatBytes(free), profiling.FormatBytes(minDiskBytes))
	if free < minDiskBytes {
		r.Status = Fail
		r.Detail = "free up space or move the project"
		return r
	}
	r.Status = Pass
	return r
}

func checkFileLimit() Result {
	r := Result{Name: "file_descriptors", Required: true}

	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		r.Status = Fail
		r.Message = fmt.Sprintf("cannot read limit: %v", err)
		return r
	}

	r.Message = fmt.Sprintf("%d (minimum %d)", limit.Cur, minFileDescriptors)
	if limit.Cur < minFileDescriptors {
		r.Status = Fail
		r.Detail = "raise it with 'ulimit -n 4096'"
		return r
	}
	r.Status = Pass
	return r
}

// checkMemory reads MemAvailable from /proc/meminfo. On systems without
// it the check is skipped rather than guessed at.
func checkMemory() (Result, bool) {
	avail, err := memAvailable("/proc/meminfo")
	if err != nil {
		return Result{}, false
	}

	r := Result{Name: "memory", Required: false}
	r.Message = fmt.Sprintf("%s available", profiling.FormatBytes(avail))
	if avail < minMemoryBytes {
		r.Status = Warn
		r.Detail = "large indexing runs may be slow; lower embeddings.batch_size"
		return r, true
	}
	r.Status = Pass
	return r, true
}

func memAvailable(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, err
		}
		return kb * 1024, nil
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("no MemAvailable line in %s", path)
}
