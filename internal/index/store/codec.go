package store

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/Adithya-Monish-Kumar-K/argus-index/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/argus-index/pkg/errors"
)

// Record layout: a fixed header followed by a zstd frame holding the
// length-prefixed little-endian body.
//
//	0:4   magic
//	4:8   format version
//	8:16  payload length
//	16:20 CRC32 (IEEE) of the payload
const (
	documentMagic uint32 = 0x44475241 // "ARGD"
	termMagic     uint32 = 0x54475241 // "ARGT"
	formatVersion uint32 = 1
	headerSize           = 20
)

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(1<<30))
)

func frame(magic uint32, body []byte) []byte {
	payload := zstdEncoder.EncodeAll(body, nil)
	out := make([]byte, headerSize, headerSize+len(payload))
	binary.LittleEndian.PutUint32(out[0:4], magic)
	binary.LittleEndian.PutUint32(out[4:8], formatVersion)
	binary.LittleEndian.PutUint64(out[8:16], uint64(len(payload)))
	binary.LittleEndian.PutUint32(out[16:20], crc32.ChecksumIEEE(payload))
	return append(out, payload...)
}

func unframe(magic uint32, data []byte) ([]byte, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: short header (%d bytes)", apperrors.ErrMalformedRecord, len(data))
	}
	if got := binary.LittleEndian.Uint32(data[0:4]); got != magic {
		return nil, fmt.Errorf("%w: bad magic %x", apperrors.ErrMalformedRecord, got)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", apperrors.ErrMalformedRecord, v)
	}
	size := binary.LittleEndian.Uint64(data[8:16])
	payload := data[headerSize:]
	if uint64(len(payload)) != size {
		return nil, fmt.Errorf("%w: payload is %d bytes, header says %d", apperrors.ErrMalformedRecord, len(payload), size)
	}
	if crc32.ChecksumIEEE(payload) != binary.LittleEndian.Uint32(data[16:20]) {
		return nil, fmt.Errorf("%w: checksum mismatch", apperrors.ErrMalformedRecord)
	}
	body, err := zstdDecoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decompressing: %v", apperrors.ErrMalformedRecord, err)
	}
	return body, nil
}

// byteWriter appends little-endian primitives with uvarint length prefixes.
type byteWriter struct{ buf []byte }

func (w *byteWriter) uvarint(v uint64) { w.buf = binary.AppendUvarint(w.buf, v) }
func (w *byteWriter) uint32(v uint32)  { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *byteWriter) int64(v int64)    { w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v)) }

func (w *byteWriter) bytes(b []byte) {
	w.uvarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *byteWriter) string(s string) {
	w.uvarint(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

// byteReader is the counterpart of byteWriter. The first failure sticks
// and every later read returns zero values.
type byteReader struct {
	buf []byte
	err error
}

func (r *byteReader) fail(what string) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: truncated %s", apperrors.ErrMalformedRecord, what)
	}
}

func (r *byteReader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf)
	if n <= 0 {
		r.fail("varint")
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

func (r *byteReader) uint32() uint32 {
	if r.err != nil || len(r.buf) < 4 {
		r.fail("uint32")
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf)
	r.buf = r.buf[4:]
	return v
}

func (r *byteReader) int64() int64 {
	if r.err != nil || len(r.buf) < 8 {
		r.fail("int64")
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf)
	r.buf = r.buf[8:]
	return int64(v)
}

func (r *byteReader) bytes() []byte {
	n := r.uvarint()
	if r.err != nil {
		return nil
	}
	if uint64(len(r.buf)) < n {
		r.fail("bytes")
		return nil
	}
	b := r.buf[:n:n]
	r.buf = r.buf[n:]
	return b
}

func (r *byteReader) string() string {
	return string(r.bytes())
}

func encodeDocument(doc *index.Document) []byte {
	w := &byteWriter{buf: make([]byte, 0, len(doc.Content)+len(doc.URL)+64)}
	w.string(doc.URL)
	w.uint32(uint32(doc.ID))
	w.string(doc.Title)
	w.string(doc.ContentType)
	w.string(doc.Language)
	w.int64(doc.IndexedAt.UnixNano())
	w.string(doc.Content)
	return frame(documentMagic, w.buf)
}

func decodeDocument(data []byte) (*index.Document, error) {
	body, err := unframe(documentMagic, data)
	if err != nil {
		return nil, err
	}
	r := &byteReader{buf: body}
	doc := &index.Document{
		URL:         r.string(),
		ID:          index.DocumentID(r.uint32()),
		Title:       r.string(),
		ContentType: r.string(),
		Language:    r.string(),
	}
	indexedAt := r.int64()
	doc.Content = r.string()
	if r.err != nil {
		return nil, r.err
	}
	if indexedAt != 0 {
		doc.IndexedAt = time.Unix(0, indexedAt).UTC()
	}
	return doc, nil
}

// Term bodies carry the document bitmap followed by, per document in
// ascending id order, the occurrence count and delta-coded positions.
// Occurrence text is the term text and is not repeated.
func encodeTerm(t *index.Term) ([]byte, error) {
	w := &byteWriter{}
	w.string(t.Text())
	bm, err := t.Documents().ToBytes()
	if err != nil {
		return nil, fmt.Errorf("serialising document bitmap: %w", err)
	}
	w.bytes(bm)
	for _, id := range t.OccurringDocuments() {
		occs := t.OccurrencesIn(id)
		w.uvarint(uint64(len(occs)))
		prev := 0
		for _, o := range occs {
			w.uvarint(uint64(o.WordIndex - prev))
			w.uvarint(uint64(o.CharStart))
			w.uvarint(uint64(o.CharEnd - o.CharStart))
			prev = o.WordIndex
		}
	}
	return frame(termMagic, w.buf), nil
}

func decodeTerm(data []byte) (*index.Term, error) {
	body, err := unframe(termMagic, data)
	if err != nil {
		return nil, err
	}
	r := &byteReader{buf: body}
	text := r.string()
	bmBytes := r.bytes()
	if r.err != nil {
		return nil, r.err
	}
	bm := roaring.New()
	if _, err := bm.FromBuffer(bmBytes); err != nil {
		return nil, fmt.Errorf("%w: document bitmap: %v", apperrors.ErrMalformedRecord, err)
	}

	term := index.NewTerm(text)
	it := bm.Iterator()
	for it.HasNext() {
		id := index.DocumentID(it.Next())
		n := r.uvarint()
		if r.err != nil {
			return nil, r.err
		}
		if n == 0 || n > uint64(len(r.buf)) {
			return nil, fmt.Errorf("%w: bad occurrence count %d for document %d", apperrors.ErrMalformedRecord, n, id)
		}
		occs := make([]index.Occurrence, 0, n)
		pos := 0
		for range n {
			pos += int(r.uvarint())
			start := int(r.uvarint())
			length := int(r.uvarint())
			occs = append(occs, index.Occurrence{
				Text:      text,
				WordIndex: pos,
				CharStart: start,
				CharEnd:   start + length,
			})
		}
		if r.err != nil {
			return nil, r.err
		}
		term.Add(id, occs...)
	}
	if len(r.buf) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", apperrors.ErrMalformedRecord, len(r.buf))
	}
	return term, nil
}
