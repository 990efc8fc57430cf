package patharchive

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// pooledFlateWriter wraps a flate.Writer so it returns to its pool on Close.
type pooledFlateWriter struct {
	w    *flate.Writer
	pool *sync.Pool
}

func (p *pooledFlateWriter) Write(b []byte) (int, error) {
	return p.w.Write(b)
}

func (p *pooledFlateWriter) Close() error {
	err := p.w.Close()
	p.pool.Put(p.w)
	return err
}

// zipEntryWriter writes zip archives using pooled deflate compressors, which
// avoids re-allocating compressor state for every entry.
type zipEntryWriter struct {
	zw        *zip.Writer
	flatePool sync.Pool
}

func newZipEntryWriter(dst *os.File, level Level) *zipEntryWriter {
	w := &zipEntryWriter{zw: zip.NewWriter(dst)}
	w.flatePool = sync.Pool{
		New: func() any {
			fw, err := flate.NewWriter(nil, level.FlateLevel())
			if err != nil {
				// Level is validated at parse time.
				panic(fmt.Sprintf("flate writer: %v", err))
			}
			return fw
		},
	}
	w.zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		fw := w.flatePool.Get().(*flate.Writer)
		fw.Reset(out)
		return &pooledFlateWriter{w: fw, pool: &w.flatePool}, nil
	})
	return w
}

func (w *zipEntryWriter) WriteDir(name string, info fs.FileInfo) error {
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Store
	_, err = w.zw.CreateHeader(hdr)
	return err
}

func (w *zipEntryWriter) WriteFile(name string, info fs.FileInfo, src *os.File, buf []byte) error {
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	entry, err := w.zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.CopyBuffer(entry, src, buf)
	return err
}

func (w *zipEntryWriter) Close() error {
	return w.zw.Close()
}
