package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

const tempPattern = ".cache-*"

// DiskStore 以 <root>/<key> 的文件布局持久化条目。写入遵循临时文件 + rename，
// 正文完整落盘之后才对读者可见。
type DiskStore struct {
	fs       afero.Fs
	basePath string

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// NewDiskStore 以 basePath 为根目录构建磁盘存储。fsys 为 nil 时使用真实文件系统。
func NewDiskStore(fsys afero.Fs, basePath string) (*DiskStore, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}
	if fsys == nil {
		fsys = afero.NewOsFs()
		abs, err := filepath.Abs(basePath)
		if err != nil {
			return nil, fmt.Errorf("resolve storage path: %w", err)
		}
		basePath = abs
	}
	basePath = filepath.Clean(basePath)

	if err := fsys.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &DiskStore{
		fs:       fsys,
		basePath: basePath,
		locks:    make(map[string]*entryLock),
	}, nil
}

func (s *DiskStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filePath, err := s.entryPath(key)
	if err != nil {
		return nil, err
	}

	info, err := s.fs.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	f, err := s.fs.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

func (s *DiskStore) Set(ctx context.Context, key string, body io.Reader) error {
	unlock := s.lockEntry(key)
	defer unlock()

	filePath, err := s.entryPath(key)
	if err != nil {
		return err
	}
	if exists, err := s.exists(filePath); err != nil || exists {
		return err
	}

	dir := filepath.Dir(filePath)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tempFile, err := afero.TempFile(s.fs, dir, tempPattern)
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = copyWithContext(ctx, tempFile, body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		s.fs.Remove(tempName)
		return err
	}

	if err := s.fs.Rename(tempName, filePath); err != nil {
		s.fs.Remove(tempName)
		return err
	}
	return nil
}

func (s *DiskStore) Has(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	filePath, err := s.entryPath(key)
	if err != nil {
		return false, err
	}
	return s.exists(filePath)
}

func (s *DiskStore) Remove(_ context.Context, key string) error {
	unlock := s.lockEntry(key)
	defer unlock()

	filePath, err := s.entryPath(key)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// List 遍历整棵目录树，跳过写入中的临时文件。
func (s *DiskStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := afero.Walk(s.fs, s.basePath, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), strings.TrimSuffix(tempPattern, "*")) {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *DiskStore) Clear(_ context.Context) error {
	entries, err := afero.ReadDir(s.fs, s.basePath)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := s.fs.RemoveAll(filepath.Join(s.basePath, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (s *DiskStore) exists(filePath string) (bool, error) {
	info, err := s.fs.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// lockEntry 避免同一 key 的并发写入互相覆盖临时文件。
func (s *DiskStore) lockEntry(key string) func() {
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

// entryPath 只接受已规范化的 key：含 ".."、"." 或空段的 key 会被拒绝，
// 否则 "ac/../cas/x" 这类 key 会被折叠到另一个命名空间。
func (s *DiskStore) entryPath(key string) (string, error) {
	rel := path.Clean("/" + key)
	rel = strings.TrimPrefix(rel, "/")
	if key == "" || rel == "" || rel == "." {
		return "", ErrInvalidKey
	}
	if rel != key {
		return "", wrapf(ErrInvalidKey, "key %q is not in canonical form", key)
	}

	filePath := filepath.Join(s.basePath, filepath.FromSlash(rel))
	if !strings.HasPrefix(filePath, s.basePath+string(filepath.Separator)) {
		return "", wrapf(ErrInvalidKey, "key %q escapes storage root", key)
	}
	return filePath, nil
}
