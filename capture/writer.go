//go:build linux

package capture

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sofiworker/afring/pcap"
)

type packetWriter interface {
	WritePacket(data []byte, ts time.Time, origLen uint32) error
	Close() error
}

type pcapWriter struct {
	writer *pcap.Writer
	closer io.Closer
}

func (w *pcapWriter) WritePacket(data []byte, ts time.Time, origLen uint32) error {
	return w.writer.WritePacket(data, ts, origLen)
}

func (w *pcapWriter) Close() error {
	err := w.writer.Close()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func buildWriter(cfg Config) (packetWriter, error) {
	if cfg.Writer == nil && cfg.OutputPath == "" {
		return nil, nil
	}

	var w io.Writer
	var closer io.Closer

	if cfg.Writer != nil {
		w = cfg.Writer
		if c, ok := w.(io.Closer); ok {
			closer = c
		}
	} else {
		file, err := os.Create(cfg.OutputPath)
		if err != nil {
			return nil, fmt.Errorf("capture: create output: %w", err)
		}
		w = file
		closer = file
	}

	writer, err := pcap.NewWriter(w,
		pcap.WithSnapLen(cfg.SnapLen),
		pcap.WithTimestampResolution(time.Nanosecond),
		pcap.WithBuffer(64*1024))
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}
	return &pcapWriter{writer: writer, closer: closer}, nil
}
