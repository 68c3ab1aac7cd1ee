package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/irportal/anchorsign/internal/common"
	"github.com/irportal/anchorsign/internal/filex"
)

const metaSuffix = ".meta.json"

type dirMeta struct {
	Owner       string `json:"owner"`
	ContentType string `json:"content_type"`
}

// DirStore keeps each document as a file under a root directory, with its
// metadata in a JSON sidecar.
type DirStore struct {
	root string
}

// NewDirStore creates root (relative to the working directory unless
// absolute) and returns a store over it.
func NewDirStore(root string) (*DirStore, error) {
	dir, err := filex.EnsureSubdDir(root)
	if err != nil {
		return nil, err
	}
	return &DirStore{root: dir}, nil
}

func (s *DirStore) path(ref string) (string, error) {
	if !ValidRef(ref) {
		return "", ErrInvalidRef
	}
	return filepath.Join(s.root, filepath.FromSlash(ref)), nil
}

func (s *DirStore) Put(ctx context.Context, ref string, obj Object) error {
	p, err := s.path(ref)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(dirMeta{Owner: obj.Owner, ContentType: obj.ContentType})
	if err != nil {
		return err
	}
	// Data first: a reader that finds the sidecar also finds the bytes.
	if err := filex.WriteFileAtomic(p, obj.Data); err != nil {
		return err
	}
	return filex.WriteFileAtomic(p+metaSuffix, meta)
}

func (s *DirStore) Get(ctx context.Context, ref string) (*Object, error) {
	p, err := s.path(ref)
	if err != nil {
		return nil, common.ErrorNotFound
	}
	raw, err := os.ReadFile(p + metaSuffix)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var meta dirMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("read document: %w", err)
	}
	return &Object{Data: data, Owner: meta.Owner, ContentType: meta.ContentType}, nil
}

func (s *DirStore) Delete(ctx context.Context, ref string) error {
	p, err := s.path(ref)
	if err != nil {
		return err
	}
	for _, name := range []string{p + metaSuffix, p} {
		if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}
