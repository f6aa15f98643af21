package pcap

import (
	"bufio"
	"fmt"
	"io"
	"time"
)

type WriterOption func(*writerConfig) error

type writerConfig struct {
	resolution time.Duration
	snapLen    uint32
	network    uint32
	bufferSize int
}

// Writer appends packets to a pcap stream. Not safe for concurrent
// use; the capture runner serializes writes per file.
type Writer struct {
	w      io.Writer
	buf    *bufio.Writer
	header FileHeader
	tsUnit time.Duration
}

// NewWriter writes the file header and returns a packet writer.
func NewWriter(w io.Writer, opts ...WriterOption) (*Writer, error) {
	cfg := writerConfig{
		resolution: time.Microsecond,
		snapLen:    65535,
		network:    LinkTypeEthernet,
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	magic := MagicMicroseconds
	if cfg.resolution == time.Nanosecond {
		magic = MagicNanoseconds
	}

	wr := &Writer{
		w: w,
		header: FileHeader{
			MagicNumber:  magic,
			VersionMajor: versionMajor,
			VersionMinor: versionMinor,
			SnapLen:      cfg.snapLen,
			Network:      cfg.network,
		},
		tsUnit: cfg.resolution,
	}
	if cfg.bufferSize > 0 {
		wr.buf = bufio.NewWriterSize(w, cfg.bufferSize)
		wr.w = wr.buf
	}

	var hdr [fileHeaderSize]byte
	wr.header.marshal(hdr[:])
	if _, err := wr.w.Write(hdr[:]); err != nil {
		return nil, fmt.Errorf("pcap: write file header: %w", err)
	}
	return wr, nil
}

// Header returns the file header as written.
func (w *Writer) Header() FileHeader {
	return w.header
}

// WritePacket appends one record. data is truncated to the writer's
// snap length; origLen is the wire length (0 means len(data)). A zero
// ts stamps the current time.
func (w *Writer) WritePacket(data []byte, ts time.Time, origLen uint32) error {
	if origLen == 0 {
		origLen = uint32(len(data))
	}
	if uint32(len(data)) > w.header.SnapLen {
		data = data[:w.header.SnapLen]
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	var hdr packetHeader
	hdr.setTimestamp(ts, w.tsUnit)
	hdr.inclLen = uint32(len(data))
	hdr.origLen = origLen

	var hdrBytes [packetHeaderSize]byte
	hdr.marshal(hdrBytes[:])
	if _, err := w.w.Write(hdrBytes[:]); err != nil {
		return fmt.Errorf("pcap: write record header: %w", err)
	}
	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("pcap: write record data: %w", err)
	}
	return nil
}

// Flush drains the internal buffer, if any.
func (w *Writer) Flush() error {
	if w.buf != nil {
		return w.buf.Flush()
	}
	return nil
}

// Close flushes buffered records. The underlying writer is not closed.
func (w *Writer) Close() error {
	return w.Flush()
}

// WithSnapLen caps the stored length per record.
func WithSnapLen(snapLen uint32) WriterOption {
	return func(cfg *writerConfig) error {
		if snapLen == 0 {
			return fmt.Errorf("pcap: snap length must be positive")
		}
		cfg.snapLen = snapLen
		return nil
	}
}

// WithLinkType overrides the link type recorded in the file header.
func WithLinkType(linkType uint32) WriterOption {
	return func(cfg *writerConfig) error {
		cfg.network = linkType
		return nil
	}
}

// WithTimestampResolution selects micro- or nanosecond stamps.
func WithTimestampResolution(resolution time.Duration) WriterOption {
	return func(cfg *writerConfig) error {
		switch resolution {
		case time.Microsecond, time.Nanosecond:
			cfg.resolution = resolution
			return nil
		default:
			return fmt.Errorf("pcap: unsupported timestamp resolution %s", resolution)
		}
	}
}

// WithBuffer batches writes to reduce syscalls on the capture path.
func WithBuffer(size int) WriterOption {
	return func(cfg *writerConfig) error {
		if size <= 0 {
			return fmt.Errorf("pcap: buffer size must be positive")
		}
		cfg.bufferSize = size
		return nil
	}
}
