package storage

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
)

// CorruptLog is returned by ReadAll when a frame's CRC does not match its
// payload; the caller truncates the log at the last good frame and
// replays from the most recent snapshot.
var CorruptLog = fmt.Errorf("CorruptLog")

// AppendLog is the node's chain.log: a sequence of length-prefixed,
// checksummed block frames written in commit order. Each commit is
// write-log → fsync so a crash between steps leaves a valid, replayable
// log.
type AppendLog struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenAppendLog opens (creating if necessary) the log file at path for
// appending and replay.
func OpenAppendLog(path string) (*AppendLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open chain log: %w", err)
	}
	return &AppendLog{path: path, f: f}, nil
}

// Append writes one frame [len(4) | data | crc32(4)] and fsyncs before
// returning, so the frame is durable once Append succeeds.
func (l *AppendLog) Append(data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	frame := make([]byte, 4+len(data)+4)
	binary.BigEndian.PutUint32(frame[:4], uint32(len(data)))
	copy(frame[4:], data)
	sum := crc32.ChecksumIEEE(data)
	binary.BigEndian.PutUint32(frame[4+len(data):], sum)

	if _, err := l.f.Write(frame); err != nil {
		return fmt.Errorf("append frame: %w", err)
	}
	return l.f.Sync()
}

// ReadAll replays every frame from the start of the log, invoking fn with
// each payload in order. If a frame's checksum fails, ReadAll stops and
// returns CorruptLog along with the byte offset of the last good frame.
// If the file ends mid-frame (a torn write from a crash), ReadAll stops
// and returns that offset with a nil error. Either way the caller can
// truncate the log at the returned offset.
func (l *AppendLog) ReadAll(fn func(data []byte) error) (validBytes int64, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.f.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek log: %w", err)
	}

	var offset int64
	header := make([]byte, 4)
	for {
		n, readErr := io.ReadFull(l.f, header)
		if readErr == io.EOF && n == 0 {
			break
		}
		if readErr != nil {
			break // Torn header: stop before this offset.
		}
		length := binary.BigEndian.Uint32(header)
		body := make([]byte, int(length)+4)
		if _, err := io.ReadFull(l.f, body); err != nil {
			break // Torn body: stop before this offset.
		}
		data := body[:length]
		wantSum := binary.BigEndian.Uint32(body[length:])
		if crc32.ChecksumIEEE(data) != wantSum {
			return offset, CorruptLog
		}
		if err := fn(data); err != nil {
			return offset, fmt.Errorf("apply frame at offset %d: %w", offset, err)
		}
		offset += int64(4 + length + 4)
	}
	return offset, nil
}

// Truncate cuts the log back to validBytes, discarding any trailing torn
// or corrupt frame, then repositions the append cursor at the new end.
func (l *AppendLog) Truncate(validBytes int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.f.Truncate(validBytes); err != nil {
		return fmt.Errorf("truncate log: %w", err)
	}
	if _, err := l.f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (l *AppendLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
