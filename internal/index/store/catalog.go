package store

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/index"
)

const catalogFile = "catalog.log"

// catalog is the append-only log assigning document ids to URLs. Each
// record is
//
//	0:4  body length
//	4:8  CRC32 of the body
//	8:   body: uint32 id, URL bytes
//
// Ids are dense and start at 1, so the number of records is the
// collection's document count. A torn final record is ignored on open and
// truncated away when the catalog is writable.
type catalog struct {
	mu       sync.RWMutex
	path     string
	f        *os.File
	readOnly bool
	offset   int64
	urls     []string
	byURL    map[string]index.DocumentID
}

func openCatalog(path string, readOnly bool) (*catalog, error) {
	flag := os.O_RDWR | os.O_CREATE
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if errors.Is(err, os.ErrNotExist) && readOnly {
		// The indexer has not written anything yet; Refresh picks the file
		// up once it exists.
		return &catalog{path: path, readOnly: true, byURL: make(map[string]index.DocumentID)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	c := &catalog{
		path:     path,
		f:        f,
		readOnly: readOnly,
		byURL:    make(map[string]index.DocumentID),
	}
	if err := c.replay(); err != nil {
		f.Close()
		return nil, err
	}
	if !readOnly {
		if err := f.Truncate(c.offset); err != nil {
			f.Close()
			return nil, fmt.Errorf("truncating catalog tail: %w", err)
		}
		if _, err := f.Seek(c.offset, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("seeking catalog end: %w", err)
		}
	}
	return c, nil
}

// replay reads complete records from the current offset onwards. The
// caller must hold c.mu for writing.
func (c *catalog) replay() error {
	if c.f == nil {
		f, err := os.Open(c.path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("opening catalog: %w", err)
		}
		c.f = f
	}

	r := bufio.NewReader(io.NewSectionReader(c.f, c.offset, 1<<62))
	var header [8]byte
	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			return nil
		}
		size := binary.LittleEndian.Uint32(header[0:4])
		if size < 4 || size > 1<<20 {
			return nil
		}
		body := make([]byte, size)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil
		}
		if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(header[4:8]) {
			return nil
		}
		id := index.DocumentID(binary.LittleEndian.Uint32(body[0:4]))
		if int(id) != len(c.urls)+1 {
			return fmt.Errorf("catalog record at offset %d has id %d, expected %d", c.offset, id, len(c.urls)+1)
		}
		url := string(body[4:])
		c.urls = append(c.urls, url)
		c.byURL[url] = id
		c.offset += int64(len(header) + len(body))
	}
}

// refresh picks up records appended by another process.
func (c *catalog) refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replay()
}

func (c *catalog) lookup(url string) (index.DocumentID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byURL[url]
	return id, ok
}

func (c *catalog) url(id index.DocumentID) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if id == 0 || int(id) > len(c.urls) {
		return "", false
	}
	return c.urls[id-1], true
}

func (c *catalog) count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.urls)
}

// assign returns url's id, appending a new record when url is unknown.
func (c *catalog) assign(url string) (id index.DocumentID, created bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.byURL[url]; ok {
		return id, false, nil
	}
	if c.readOnly {
		return 0, false, errReadOnly
	}

	id = index.DocumentID(len(c.urls) + 1)
	body := make([]byte, 4, 4+len(url))
	binary.LittleEndian.PutUint32(body, uint32(id))
	body = append(body, url...)

	rec := make([]byte, 8, 8+len(body))
	binary.LittleEndian.PutUint32(rec[0:4], uint32(len(body)))
	binary.LittleEndian.PutUint32(rec[4:8], crc32.ChecksumIEEE(body))
	rec = append(rec, body...)

	if _, err := c.f.Write(rec); err != nil {
		c.rewind()
		return 0, false, fmt.Errorf("appending catalog record: %w", err)
	}
	if err := c.f.Sync(); err != nil {
		c.rewind()
		return 0, false, fmt.Errorf("syncing catalog: %w", err)
	}
	c.offset += int64(len(rec))
	c.urls = append(c.urls, url)
	c.byURL[url] = id
	return id, true, nil
}

// rewind drops a partially written record so the next append starts on a
// record boundary.
func (c *catalog) rewind() {
	_ = c.f.Truncate(c.offset)
	_, _ = c.f.Seek(c.offset, io.SeekStart)
}

func (c *catalog) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f == nil {
		return nil
	}
	err := c.f.Close()
	c.f = nil
	return err
}
