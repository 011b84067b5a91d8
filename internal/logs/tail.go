package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const pollInterval = 250 * time.Millisecond

// TailOptions selects which part of the log file to read. A negative
// Offset asks for the last Limit lines; otherwise reading starts at
// Offset. With Follow set, an empty read blocks up to Wait for new lines.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
}

// TailResult carries the fetched lines and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads log lines from path according to opts. A missing file is not
// an error; it yields an empty result at offset zero so a client can poll
// before the daemon has written anything.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	if opts.Wait < 0 {
		opts.Wait = 0
	}

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return TailResult{}, nil
	}
	if err != nil {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}

	var result TailResult
	if opts.Offset < 0 {
		result, err = readTail(path, opts.Limit)
	} else {
		start := opts.Offset
		if start > info.Size() {
			start = info.Size()
		}
		result, err = readFrom(path, start)
	}
	if err != nil {
		return result, err
	}

	if opts.Follow && opts.Wait > 0 && len(result.Lines) == 0 {
		return pollForLines(ctx, path, result.Offset, opts.Wait)
	}
	return result, nil
}

// readTail returns the last limit lines of the file and the end offset.
func readTail(path string, limit int) (TailResult, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return TailResult{}, nil
	}
	if err != nil {
		return TailResult{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	var (
		ring  []string
		total int
	)
	if limit > 0 {
		ring = make([]string, 0, limit)
	}
	offset, err := scanLines(file, 0, func(line string) {
		if limit <= 0 {
			return
		}
		if len(ring) < limit {
			ring = append(ring, line)
		} else {
			ring[total%limit] = line
		}
		total++
	})
	if err != nil {
		return TailResult{}, err
	}

	if total <= limit {
		return TailResult{Lines: ring, Offset: offset}, nil
	}
	ordered := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		ordered = append(ordered, ring[(total+i)%limit])
	}
	return TailResult{Lines: ordered, Offset: offset}, nil
}

// readFrom returns every complete line at or after offset.
func readFrom(path string, offset int64) (TailResult, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return TailResult{}, nil
	}
	if err != nil {
		return TailResult{Offset: offset}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	var lines []string
	end, err := scanLines(file, offset, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		return TailResult{Offset: offset}, err
	}
	return TailResult{Lines: lines, Offset: end}, nil
}

// scanLines feeds each line from start to EOF into visit and reports the
// offset after the last line consumed.
func scanLines(file *os.File, start int64, visit func(string)) (int64, error) {
	if _, err := file.Seek(start, io.SeekStart); err != nil {
		return start, fmt.Errorf("seek log file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		visit(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return start, fmt.Errorf("read log file: %w", err)
	}

	end, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return start, fmt.Errorf("determine log offset: %w", err)
	}
	return end, nil
}

// pollForLines re-reads from offset until lines appear, the wait window
// closes, or the context is canceled.
func pollForLines(ctx context.Context, path string, offset int64, wait time.Duration) (TailResult, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		result, err := readFrom(path, offset)
		if err != nil {
			return result, err
		}
		if len(result.Lines) > 0 || time.Now().After(deadline) {
			return result, nil
		}
		offset = result.Offset

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-ticker.C:
		}
	}
}
