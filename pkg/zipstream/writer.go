// Package zipstream writes ZIP containers as a forward-only stream.
//
// Entries are always stored (method 0, no compression) so that file bytes
// can be emitted while they are still being downloaded. Local file headers
// are written before an entry's size or CRC-32 is known and therefore carry
// zero placeholders; the true values appear only in the central directory.
// Readers that locate entries through the end-of-directory record (the
// normal path) extract such archives without issue.
package zipstream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"math"
)

const (
	localHeaderSignature   = 0x04034b50
	centralHeaderSignature = 0x02014b50
	endOfDirSignature      = 0x06054b50
	zip64EndOfDirSignature = 0x06064b50
	zip64LocatorSignature  = 0x07064b50

	versionStored = 20
	versionZip64  = 45

	// Fixed MS-DOS timestamp (1980-01-01 00:00:00) so that archiving the
	// same inputs twice yields byte-identical output.
	dosEpochDate = 0x21
	dosEpochTime = 0

	zip64ExtraID = 0x0001

	limit32 = math.MaxUint32
	limit16 = math.MaxUint16
)

// ErrClosed is returned by operations on a Writer after Close.
var ErrClosed = errors.New("zipstream: writer is closed")

type entry struct {
	name   string
	crc    uint32
	size   uint64
	offset uint64
}

// Writer assembles a stored-only ZIP stream on the underlying io.Writer.
// It never seeks: central directory metadata is accumulated in memory
// (a few dozen bytes per entry) and flushed by Close.
type Writer struct {
	w       io.Writer
	entries []entry
	crc     hash.Hash32
	open    bool
	written uint64
	closed  bool
	err     error
}

// NewWriter returns a Writer emitting to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, crc: crc32.NewIEEE()}
}

// Create finishes the current entry, if any, and starts a new stored entry
// with the given name. Subsequent Write calls append to it.
func (zw *Writer) Create(name string) error {
	if zw.err != nil {
		return zw.err
	}
	if zw.closed {
		return ErrClosed
	}
	if name == "" {
		return errors.New("zipstream: entry name is required")
	}
	if len(name) > limit16 {
		return fmt.Errorf("zipstream: entry name exceeds %d bytes", limit16)
	}
	zw.finishEntry()

	zw.entries = append(zw.entries, entry{name: name, offset: zw.written})
	zw.open = true
	zw.crc.Reset()

	var hdr [30]byte
	le := binary.LittleEndian
	le.PutUint32(hdr[0:], localHeaderSignature)
	le.PutUint16(hdr[4:], versionStored)
	le.PutUint16(hdr[6:], 0) // flags: no data descriptor follows
	le.PutUint16(hdr[8:], 0) // method: stored
	le.PutUint16(hdr[10:], dosEpochTime)
	le.PutUint16(hdr[12:], dosEpochDate)
	le.PutUint32(hdr[14:], 0) // crc-32 placeholder
	le.PutUint32(hdr[18:], 0) // compressed size placeholder
	le.PutUint32(hdr[22:], 0) // uncompressed size placeholder
	le.PutUint16(hdr[26:], uint16(len(name)))
	le.PutUint16(hdr[28:], 0) // extra length

	if err := zw.emit(hdr[:]); err != nil {
		return err
	}
	return zw.emit([]byte(name))
}

// Write appends payload bytes to the entry opened by the last Create.
func (zw *Writer) Write(p []byte) (int, error) {
	if zw.err != nil {
		return 0, zw.err
	}
	if zw.closed {
		return 0, ErrClosed
	}
	if !zw.open {
		return 0, errors.New("zipstream: Write before Create")
	}
	if err := zw.emit(p); err != nil {
		return 0, err
	}
	zw.crc.Write(p)
	cur := &zw.entries[len(zw.entries)-1]
	cur.size += uint64(len(p))
	return len(p), nil
}

// Close finishes the last entry and writes the central directory followed
// by the end-of-directory record. ZIP64 forms are emitted only when an
// offset, size, or count overflows the classic fields.
func (zw *Writer) Close() error {
	if zw.err != nil {
		return zw.err
	}
	if zw.closed {
		return ErrClosed
	}
	zw.finishEntry()
	zw.closed = true

	le := binary.LittleEndian
	dirOffset := zw.written

	for i := range zw.entries {
		e := &zw.entries[i]

		var extra []byte
		size32 := uint32(limit32)
		offset32 := uint32(limit32)
		if e.size < limit32 {
			size32 = uint32(e.size)
		}
		if e.offset < limit32 {
			offset32 = uint32(e.offset)
		}
		if size32 == limit32 || offset32 == limit32 {
			var fields []byte
			if size32 == limit32 {
				fields = le.AppendUint64(fields, e.size) // uncompressed
				fields = le.AppendUint64(fields, e.size) // compressed (stored)
			}
			if offset32 == limit32 {
				fields = le.AppendUint64(fields, e.offset)
			}
			extra = le.AppendUint16(extra, zip64ExtraID)
			extra = le.AppendUint16(extra, uint16(len(fields)))
			extra = append(extra, fields...)
		}

		version := uint16(versionStored)
		if extra != nil {
			version = versionZip64
		}

		var hdr [46]byte
		le.PutUint32(hdr[0:], centralHeaderSignature)
		le.PutUint16(hdr[4:], version) // version made by
		le.PutUint16(hdr[6:], version) // version needed
		le.PutUint16(hdr[8:], 0)       // flags
		le.PutUint16(hdr[10:], 0)      // method: stored
		le.PutUint16(hdr[12:], dosEpochTime)
		le.PutUint16(hdr[14:], dosEpochDate)
		le.PutUint32(hdr[16:], e.crc)
		le.PutUint32(hdr[20:], size32) // compressed == uncompressed
		le.PutUint32(hdr[24:], size32)
		le.PutUint16(hdr[28:], uint16(len(e.name)))
		le.PutUint16(hdr[30:], uint16(len(extra)))
		// comment length, disk start, internal and external attributes: zero
		le.PutUint32(hdr[42:], offset32)

		if err := zw.emit(hdr[:]); err != nil {
			return err
		}
		if err := zw.emit([]byte(e.name)); err != nil {
			return err
		}
		if err := zw.emit(extra); err != nil {
			return err
		}
	}

	dirSize := zw.written - dirOffset
	// Saturated classic fields hold the 0xFF.. sentinels, so the ZIP64
	// records must exist whenever a value reaches a field's maximum.
	needZip64 := len(zw.entries) >= limit16 || dirOffset >= limit32 || dirSize >= limit32

	if needZip64 {
		zip64Offset := zw.written

		var rec [56]byte
		le.PutUint32(rec[0:], zip64EndOfDirSignature)
		le.PutUint64(rec[4:], 44) // record size excluding signature and this field
		le.PutUint16(rec[12:], versionZip64)
		le.PutUint16(rec[14:], versionZip64)
		// disk numbers: zero
		le.PutUint64(rec[24:], uint64(len(zw.entries)))
		le.PutUint64(rec[32:], uint64(len(zw.entries)))
		le.PutUint64(rec[40:], dirSize)
		le.PutUint64(rec[48:], dirOffset)
		if err := zw.emit(rec[:]); err != nil {
			return err
		}

		var loc [20]byte
		le.PutUint32(loc[0:], zip64LocatorSignature)
		le.PutUint32(loc[4:], 0) // disk with the zip64 end of directory
		le.PutUint64(loc[8:], zip64Offset)
		le.PutUint32(loc[16:], 1) // total disks
		if err := zw.emit(loc[:]); err != nil {
			return err
		}
	}

	count16 := uint16(limit16)
	if len(zw.entries) < limit16 {
		count16 = uint16(len(zw.entries))
	}
	dirSize32 := uint32(limit32)
	if dirSize < limit32 {
		dirSize32 = uint32(dirSize)
	}
	dirOffset32 := uint32(limit32)
	if dirOffset < limit32 {
		dirOffset32 = uint32(dirOffset)
	}

	var end [22]byte
	le.PutUint32(end[0:], endOfDirSignature)
	// disk numbers: zero
	le.PutUint16(end[8:], count16)
	le.PutUint16(end[10:], count16)
	le.PutUint32(end[12:], dirSize32)
	le.PutUint32(end[16:], dirOffset32)
	// comment length: zero
	return zw.emit(end[:])
}

// BytesWritten reports the number of bytes emitted so far, including
// headers and directory records.
func (zw *Writer) BytesWritten() uint64 { return zw.written }

// Entries reports the number of entries created so far.
func (zw *Writer) Entries() int { return len(zw.entries) }

func (zw *Writer) finishEntry() {
	if !zw.open {
		return
	}
	cur := &zw.entries[len(zw.entries)-1]
	cur.crc = zw.crc.Sum32()
	zw.open = false
}

func (zw *Writer) emit(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	n, err := zw.w.Write(p)
	zw.written += uint64(n)
	if err != nil {
		zw.err = fmt.Errorf("zipstream: write: %w", err)
		return zw.err
	}
	return nil
}
