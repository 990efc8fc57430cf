package patharchive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
)

// tarEntryWriter writes tar containers through a compressing stream. The
// compressor is either a parallel gzip writer or a zstd encoder.
type tarEntryWriter struct {
	tw         *tar.Writer
	compressor io.WriteCloser
}

func newTarGzEntryWriter(dst *os.File, level Level) (*tarEntryWriter, error) {
	gz, err := pgzip.NewWriterLevel(dst, level.FlateLevel())
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	return &tarEntryWriter{tw: tar.NewWriter(gz), compressor: gz}, nil
}

func newTarZstEntryWriter(dst *os.File, level Level) (*tarEntryWriter, error) {
	enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(level.ZstdLevel()))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %w", err)
	}
	return &tarEntryWriter{tw: tar.NewWriter(enc), compressor: enc}, nil
}

func (w *tarEntryWriter) WriteDir(name string, info fs.FileInfo) error {
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	return w.tw.WriteHeader(hdr)
}

func (w *tarEntryWriter) WriteFile(name string, info fs.FileInfo, src *os.File, buf []byte) error {
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name

	if err := w.tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.CopyBuffer(w.tw, src, buf)
	return err
}

func (w *tarEntryWriter) Close() error {
	if err := w.tw.Close(); err != nil {
		w.compressor.Close()
		return err
	}
	return w.compressor.Close()
}
