package upload

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/portal/hasher"
	"github.com/meigma/portal/source"
)

// spool is a stream copied to a temporary file, hashed on the way.
type spool struct {
	f    *os.File
	size int64
	hash [32]byte
}

// spoolStream drains r into a temporary file in dir. The bytes are hashed
// and written concurrently from two branches of a tee.
func spoolStream(ctx context.Context, dir string, r source.ChunkReader, progress func(done int64)) (*spool, error) {
	f, err := os.CreateTemp(dir, "portal-upload-*")
	if err != nil {
		r.Cancel(err)
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	s := &spool{f: f}

	hashBranch, fileBranch := source.Tee(r)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sum, err := hasher.SumChunks(gctx, hashBranch)
		if err != nil {
			return err
		}
		s.hash = sum
		return nil
	})
	g.Go(func() error {
		w := bufio.NewWriterSize(f, source.DefaultChunkSize)
		for {
			chunk, err := fileBranch.Next(gctx)
			if err != nil {
				if isEOF(err) {
					break
				}
				return err
			}
			if _, err := w.Write(chunk); err != nil {
				return fmt.Errorf("write spool file: %w", err)
			}
			s.size += int64(len(chunk))
			if progress != nil {
				progress(s.size)
			}
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("write spool file: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		hashBranch.Cancel(err)
		fileBranch.Cancel(err)
		s.Close()
		return nil, err
	}
	return s, nil
}

// ReadAt implements io.ReaderAt.
func (s *spool) ReadAt(p []byte, off int64) (int, error) {
	return s.f.ReadAt(p, off)
}

// Close removes the spool file.
func (s *spool) Close() {
	name := s.f.Name()
	_ = s.f.Close()
	_ = os.Remove(name)
}
